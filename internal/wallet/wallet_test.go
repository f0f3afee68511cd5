package wallet

import (
	"errors"
	"go-bitcoin/internal/address"
	"go-bitcoin/internal/keys"
	"math/big"
	"testing"
)

func testAccount(t *testing.T, secret int64) Account {
	priv := keys.NewPrivateKey(big.NewInt(secret))
	return NewAccount("test", priv)
}

func testAddress(t *testing.T, a *Account) string {
	addr, err := a.Address(address.MAINNET)
	if err != nil {
		t.Fatalf("derive address: %v", err)
	}
	return addr.String
}

// TestCreateTransactionInsufficientFunds is scenario 5 from the node's
// testable properties: a single 5000-satoshi UTXO cannot cover a
// 10000-satoshi payment plus a 1000-satoshi fee.
func TestCreateTransactionInsufficientFunds(t *testing.T) {
	account := testAccount(t, 1)
	dest := testAccount(t, 2)
	destAddr := testAddress(t, &dest)

	account.Utxos[Outpoint{TxID: [32]byte{1}, Index: 0}] = UtxoEntry{
		Value:        5000,
		ScriptPubKey: account.ownScriptPubKey(),
		State:        Unspent,
	}

	_, err := CreateTransaction(&account, address.MAINNET, destAddr, 10_000, 1000)
	if err != ErrInsufficientFunds {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
}

func TestCreateTransactionSpendsLargestFirst(t *testing.T) {
	account := testAccount(t, 1)
	dest := testAccount(t, 2)
	destAddr := testAddress(t, &dest)

	small := Outpoint{TxID: [32]byte{1}, Index: 0}
	big1 := Outpoint{TxID: [32]byte{2}, Index: 0}
	account.Utxos[small] = UtxoEntry{Value: 1000, ScriptPubKey: account.ownScriptPubKey(), State: Unspent}
	account.Utxos[big1] = UtxoEntry{Value: 50_000, ScriptPubKey: account.ownScriptPubKey(), State: Unspent}

	tx, err := CreateTransaction(&account, address.MAINNET, destAddr, 10_000, 500)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	if len(tx.Inputs) != 1 {
		t.Fatalf("greedy largest-first selection of a single 50000 UTXO should need exactly 1 input, got %d", len(tx.Inputs))
	}
	if string(tx.Inputs[0].PrevTx) != string(big1.TxID[:]) {
		t.Fatalf("expected the larger UTXO to be selected first")
	}

	// one payment output plus one change output
	if len(tx.Outputs) != 2 {
		t.Fatalf("expected payment + change outputs, got %d", len(tx.Outputs))
	}
	if tx.Outputs[0].Amount != 10_000 {
		t.Fatalf("expected payment output of 10000, got %d", tx.Outputs[0].Amount)
	}
	wantChange := uint64(50_000 - 10_000 - 500)
	if tx.Outputs[1].Amount != wantChange {
		t.Fatalf("expected change of %d, got %d", wantChange, tx.Outputs[1].Amount)
	}
}

func TestCreateTransactionNoChangeWhenExact(t *testing.T) {
	account := testAccount(t, 1)
	dest := testAccount(t, 2)
	destAddr := testAddress(t, &dest)

	account.Utxos[Outpoint{TxID: [32]byte{1}, Index: 0}] = UtxoEntry{
		Value:        10_500,
		ScriptPubKey: account.ownScriptPubKey(),
		State:        Unspent,
	}

	tx, err := CreateTransaction(&account, address.MAINNET, destAddr, 10_000, 500)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if len(tx.Outputs) != 1 {
		t.Fatalf("expected no change output when amount+fee exactly matches the UTXO, got %d outputs", len(tx.Outputs))
	}
}

func TestApplyTransactionTracksOwnOutputsAndSpends(t *testing.T) {
	account := testAccount(t, 1)

	fundingOutpoint := Outpoint{TxID: [32]byte{9}, Index: 0}
	account.Utxos[fundingOutpoint] = UtxoEntry{Value: 20_000, ScriptPubKey: account.ownScriptPubKey(), State: Unspent}

	confirmedBefore := account.Utxos.ConfirmedBalance()
	if confirmedBefore != 20_000 {
		t.Fatalf("expected confirmed balance 20000, got %d", confirmedBefore)
	}

	dest := testAccount(t, 2)
	destAddr := testAddress(t, &dest)
	tx, err := CreateTransaction(&account, address.MAINNET, destAddr, 5_000, 500)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	touched, net := account.ApplyTransaction(tx, 1_700_000_000, false)
	if !touched {
		t.Fatalf("expected the account's own spend to touch it")
	}
	if net >= 0 {
		t.Fatalf("expected a negative net effect for a spend that leaves change, got %d", net)
	}

	entry, ok := account.Utxos[fundingOutpoint]
	if !ok {
		t.Fatalf("funding outpoint should still be tracked")
	}
	if entry.State != Pending {
		t.Fatalf("expected funding outpoint to move to Pending after an unconfirmed spend, got %v", entry.State)
	}
}

func TestSelectAccountUnknownName(t *testing.T) {
	w := NewWallet()
	w.AddAccount(testAccount(t, 1))
	if err := w.SelectAccount("nonexistent"); !errors.Is(err, ErrUnknownAccount) {
		t.Fatalf("expected ErrUnknownAccount, got %v", err)
	}
}

func TestWalletSelectedAccountDefaultsToFirstAdded(t *testing.T) {
	w := NewWallet()
	if _, err := w.SelectedAccount(); err != ErrNoSelectedAccount {
		t.Fatalf("expected ErrNoSelectedAccount on an empty wallet, got %v", err)
	}

	a := testAccount(t, 1)
	w.AddAccount(a)
	got, err := w.SelectedAccount()
	if err != nil {
		t.Fatalf("SelectedAccount: %v", err)
	}
	if got.Name != a.Name {
		t.Fatalf("expected the first added account to be selected by default")
	}
}
