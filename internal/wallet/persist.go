package wallet

import (
	"bytes"
	"fmt"
	"go-bitcoin/internal/encoding"
	"go-bitcoin/internal/keys"
	"go-bitcoin/internal/storage"
)

// WalletMagic and WalletFormatVersion stamp the bbolt bucket backing wallet
// persistence, per the node's persisted-state format: a length-prefixed
// sequence of (name_len, name, privkey[32], pubkey[33]) records, each
// trailed by a SHA-256d checksum.
var WalletMagic = [8]byte{'S', 'P', 'V', 'W', 'A', 'L', 'L', 'T'}

const WalletFormatVersion = 1

const AccountsBucket = "accounts"

// Save persists every account's name and keypair into the given storage
// handle. The UTXO view and history are not persisted: both are rebuilt
// from the downloaded block window on next startup.
func (w *Wallet) Save(st *storage.Store) error {
	if err := st.EnsureBucket(AccountsBucket, WalletMagic, WalletFormatVersion); err != nil {
		return err
	}
	for i, a := range w.Accounts {
		encoded, err := encodeAccountRecord(a)
		if err != nil {
			return fmt.Errorf("wallet: encode account %q: %w", a.Name, err)
		}
		key := fmt.Sprintf("%020d", i)
		if err := st.PutFramed(AccountsBucket, key, encoded); err != nil {
			return fmt.Errorf("wallet: persist account %q: %w", a.Name, err)
		}
	}
	return nil
}

// Load rebuilds a Wallet from a previously saved account set. Every account
// starts with an empty UTXO view and history; the caller re-derives both by
// replaying the downloaded block window.
func Load(st *storage.Store) (*Wallet, error) {
	if err := st.EnsureBucket(AccountsBucket, WalletMagic, WalletFormatVersion); err != nil {
		return nil, err
	}
	w := NewWallet()
	err := st.ForEach(AccountsBucket, func(key string, payload []byte) error {
		account, err := decodeAccountRecord(payload)
		if err != nil {
			return fmt.Errorf("wallet: decode account at %s: %w", key, err)
		}
		w.AddAccount(account)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return w, nil
}

func encodeAccountRecord(a Account) ([]byte, error) {
	var buf bytes.Buffer
	nameBytes := []byte(a.Name)
	if err := encoding.WriteVarBytes(&buf, nameBytes); err != nil {
		return nil, err
	}
	privBytes := a.PrivateKey.Bytes()
	if err := encoding.WriteFixedBytes(&buf, privBytes[:]); err != nil {
		return nil, err
	}
	pubBytes := a.PublicKey.Serialize(true)
	if err := encoding.WriteFixedBytes(&buf, pubBytes); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeAccountRecord(payload []byte) (Account, error) {
	r := bytes.NewReader(payload)
	nameBytes, err := encoding.ReadVarBytes(r)
	if err != nil {
		return Account{}, err
	}
	privSlice, err := encoding.ReadFixedBytes(r, 32)
	if err != nil {
		return Account{}, err
	}
	var rawPriv [32]byte
	copy(rawPriv[:], privSlice)
	pubBytes, err := encoding.ReadFixedBytes(r, 33)
	if err != nil {
		return Account{}, err
	}
	privKey, err := ParsePrivateKey(rawPriv)
	if err != nil {
		return Account{}, err
	}
	pub, err := keys.ParsePublicKey(bytes.NewReader(pubBytes))
	if err != nil {
		return Account{}, err
	}
	if err := VerifyKeypair(privKey, *pub); err != nil {
		return Account{}, err
	}
	account := NewAccount(string(nameBytes), privKey)
	return account, nil
}
