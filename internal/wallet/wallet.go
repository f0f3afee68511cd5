// Package wallet holds accounts, their UTXO views, and transaction
// construction: greedy largest-first coin selection followed by signing.
package wallet

import (
	"fmt"
	"go-bitcoin/internal/address"
	"go-bitcoin/internal/encoding"
	"go-bitcoin/internal/keys"
	"go-bitcoin/internal/script"
	"go-bitcoin/internal/transactions"
	"math/big"
	"sort"
)

type SpendingState int

const (
	Unspent SpendingState = iota
	Pending
	ConfirmedSpent
)

type Outpoint struct {
	TxID  [32]byte
	Index uint32
}

type UtxoEntry struct {
	Value        uint64
	ScriptPubKey script.Script
	State        SpendingState
}

// UtxoView is the set of outputs known to belong to one account, rebuilt
// from the downloaded block window.
type UtxoView map[Outpoint]UtxoEntry

func (v UtxoView) ConfirmedBalance() uint64 {
	var total uint64
	for _, e := range v {
		if e.State == Unspent {
			total += e.Value
		}
	}
	return total
}

func (v UtxoView) PendingBalance() uint64 {
	var total uint64
	for _, e := range v {
		if e.State == Pending {
			total += e.Value
		}
	}
	return total
}

// TxRecord is one entry in an account's transaction history, as surfaced by
// the AccountTransactions notification.
type TxRecord struct {
	Timestamp uint32
	TxID      [32]byte
	Amount    int64 // net effect on this account, satoshi (positive = received)
}

// Account pairs a name with a keypair; identity is the address derived
// from the public key.
type Account struct {
	Name       string
	PrivateKey *keys.PrivateKey
	PublicKey  keys.PublicKey
	Utxos      UtxoView
	History    []TxRecord
}

func NewAccount(name string, privKey *keys.PrivateKey) Account {
	return Account{
		Name:       name,
		PrivateKey: privKey,
		PublicKey:  privKey.PublicKey(),
		Utxos:      make(UtxoView),
	}
}

// ownScriptPubKey is the P2PKH scriptPubKey this account's own outputs pay
// to, used to recognize outputs and spends that belong to it.
func (a *Account) ownScriptPubKey() script.Script {
	hash160 := encoding.Hash160(a.PublicKey.Serialize(true))
	return script.P2pkhScript(hash160)
}

func sameScript(a, b script.Script) bool {
	aBytes, errA := a.RawBytes()
	bBytes, errB := b.RawBytes()
	if errA != nil || errB != nil {
		return false
	}
	if len(aBytes) != len(bBytes) {
		return false
	}
	for i := range aBytes {
		if aBytes[i] != bBytes[i] {
			return false
		}
	}
	return true
}

// ApplyTransaction folds a received transaction into this account's UTXO
// view: spent outpoints that belonged to the account are marked
// ConfirmedSpent (or Pending, for an unconfirmed mempool relay), and new
// outputs paying this account are added as Unspent (or Pending, for an
// unconfirmed mempool relay). Returns whether the
// transaction touched this account at all, and the net satoshi effect.
func (a *Account) ApplyTransaction(tx *transactions.Transaction, timestamp uint32, confirmed bool) (touched bool, netAmount int64) {
	for _, in := range tx.Inputs {
		var op Outpoint
		copy(op.TxID[:], in.PrevTx)
		op.Index = in.PrevIdx
		entry, ok := a.Utxos[op]
		if !ok || entry.State != Unspent {
			continue
		}
		netAmount -= int64(entry.Value)
		if confirmed {
			entry.State = ConfirmedSpent
		} else {
			entry.State = Pending
		}
		a.Utxos[op] = entry
		touched = true
	}

	own := a.ownScriptPubKey()
	txid, err := tx.Hash()
	if err != nil {
		return touched, netAmount
	}
	for i, out := range tx.Outputs {
		if !sameScript(out.ScriptPubKey, own) {
			continue
		}
		op := Outpoint{TxID: txid, Index: uint32(i)}
		state := Unspent
		if !confirmed {
			state = Pending
		}
		a.Utxos[op] = UtxoEntry{Value: out.Amount, ScriptPubKey: out.ScriptPubKey, State: state}
		netAmount += int64(out.Amount)
		touched = true
	}

	if touched {
		a.History = append(a.History, TxRecord{Timestamp: timestamp, TxID: txid, Amount: netAmount})
	}
	return touched, netAmount
}

// Address returns this account's P2PKH address on the given network.
func (a *Account) Address(net address.Network) (*address.Address, error) {
	pubKeyBytes := a.PublicKey.Serialize(true)
	return address.FromPublicKey(pubKeyBytes, address.P2PKH, net)
}

// Wallet holds an ordered list of accounts with a selected index.
type Wallet struct {
	Accounts []Account
	Selected int
}

func NewWallet() *Wallet {
	return &Wallet{Selected: -1}
}

func (w *Wallet) AddAccount(a Account) {
	w.Accounts = append(w.Accounts, a)
	if w.Selected < 0 {
		w.Selected = 0
	}
}

func (w *Wallet) SelectAccount(name string) error {
	for i, a := range w.Accounts {
		if a.Name == name {
			w.Selected = i
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnknownAccount, name)
}

func (w *Wallet) SelectedAccount() (*Account, error) {
	if w.Selected < 0 || w.Selected >= len(w.Accounts) {
		return nil, ErrNoSelectedAccount
	}
	return &w.Accounts[w.Selected], nil
}

type utxoCandidate struct {
	outpoint Outpoint
	entry    UtxoEntry
}

// selectCoins picks unspent outputs largest-first until their sum covers
// target, per the greedy coin-selection rule.
func selectCoins(view UtxoView, target uint64) ([]utxoCandidate, uint64, error) {
	candidates := make([]utxoCandidate, 0, len(view))
	for op, e := range view {
		if e.State == Unspent {
			candidates = append(candidates, utxoCandidate{outpoint: op, entry: e})
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].entry.Value > candidates[j].entry.Value
	})

	var total uint64
	chosen := make([]utxoCandidate, 0, len(candidates))
	for _, c := range candidates {
		if total >= target {
			break
		}
		chosen = append(chosen, c)
		total += c.entry.Value
	}
	if total < target {
		return nil, 0, ErrInsufficientFunds
	}
	return chosen, total, nil
}

// CreateTransaction builds and signs a transaction spending the account's
// UTXOs to destAddress, sending amount satoshi with fee satoshi going to
// miners. Change, if any, returns to the account's own address.
func CreateTransaction(a *Account, net address.Network, destAddress string, amount, fee uint64) (*transactions.Transaction, error) {
	target := amount + fee
	chosen, total, err := selectCoins(a.Utxos, target)
	if err != nil {
		return nil, err
	}

	destHash160, err := encoding.DecodeBase58(destAddress)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidAddress, destAddress, err)
	}

	inputs := make([]transactions.TxIn, len(chosen))
	for i, c := range chosen {
		prevTx := make([]byte, 32)
		copy(prevTx, c.outpoint.TxID[:])
		inputs[i] = transactions.NewTxIn(prevTx, c.outpoint.Index, 0xffffffff)
	}

	outputs := []transactions.TxOut{
		{Amount: amount, ScriptPubKey: script.P2pkhScript(destHash160)},
	}

	change := total - target
	if change > 0 {
		changeAddr, err := a.Address(net)
		if err != nil {
			return nil, fmt.Errorf("%w: deriving change address: %v", ErrInvalidAddress, err)
		}
		changeHash160, err := encoding.DecodeBase58(changeAddr.String)
		if err != nil {
			return nil, fmt.Errorf("%w: change address: %v", ErrInvalidAddress, err)
		}
		outputs = append(outputs, transactions.TxOut{
			Amount:       change,
			ScriptPubKey: script.P2pkhScript(changeHash160),
		})
	}

	tx := transactions.NewTransaction(1, inputs, outputs, 0, net != address.MAINNET, false)

	prevScriptPubKeys := make([]script.Script, len(chosen))
	for i, c := range chosen {
		prevScriptPubKeys[i] = c.entry.ScriptPubKey
	}
	if err := tx.SignInputsWithPrevOuts(prevScriptPubKeys, *a.PrivateKey, true); err != nil {
		return nil, fmt.Errorf("signing transaction: %w", err)
	}

	return &tx, nil
}

// VerifyKeypair checks that pub is the point derived from priv, guarding
// account creation against mismatched or malformed keys.
func VerifyKeypair(priv *keys.PrivateKey, pub keys.PublicKey) error {
	derived := priv.PublicKey()
	want := derived.Serialize(true)
	got := pub.Serialize(true)
	if len(want) != len(got) {
		return ErrInvalidPublicKey
	}
	for i := range want {
		if want[i] != got[i] {
			return ErrInvalidPublicKey
		}
	}
	return nil
}

// ParsePrivateKey builds a PrivateKey from a raw 32-byte secret.
func ParsePrivateKey(raw [32]byte) (*keys.PrivateKey, error) {
	secret := new(big.Int).SetBytes(raw[:])
	if secret.Sign() <= 0 {
		return nil, ErrInvalidPrivateKey
	}
	return keys.NewPrivateKey(secret), nil
}
