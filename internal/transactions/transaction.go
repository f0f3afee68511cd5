package transactions

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"go-bitcoin/internal/encoding"
	"go-bitcoin/internal/keys"
	"go-bitcoin/internal/script"
	"io"
	"slices"
)

type Transaction struct {
	Version   uint32
	Inputs    []TxIn
	Outputs   []TxOut
	Locktime  uint32
	IsTestnet bool
	IsSegwit  bool

}

func NewTransaction(version uint32, inputs []TxIn, outputs []TxOut, locktime uint32, isTestNet, isSegwit bool) Transaction {
	return Transaction{
		Version:   uint32(version),
		Inputs:    inputs,
		Outputs:   outputs,
		Locktime:  locktime,
		IsTestnet: isTestNet,
		IsSegwit:  isSegwit,
	}
}

func (t Transaction) String() string {
	id, _ := t.Id()
	return fmt.Sprintf("tx: %s\n   version:\t%d\n   tx_ins:\t%v\n   tx_outs:\t%v\n   locktime:\t%d\n   isSegwit:\t%v",
		id, t.Version, t.Inputs, t.Outputs, t.Locktime, t.IsSegwit)
}

func (t *Transaction) Id() (string, error) {
	// Human readable hexadecimal of the transaction hash
	hash, err := t.hash()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", hash), nil
}

// Hash returns the transaction id as a 32-byte array, in the same display
// byte order as TxIn.PrevTx, for outpoint bookkeeping.
func (t *Transaction) Hash() ([32]byte, error) {
	h, err := t.hash()
	if err != nil {
		return [32]byte{}, err
	}
	var out [32]byte
	copy(out[:], h)
	return out, nil
}

func (t *Transaction) hash() ([]byte, error) {
	// Binary hash of the legacy serialization
	serialized, err := t.SerializeLegacy()
	if err != nil {
		return nil, err
	}
	hash := encoding.Hash256(serialized)
	slices.Reverse(hash)
	return hash, nil
}

func (t *Transaction) Serialize() ([]byte, error) {
	// returns the byte serialization of the transaction
	if t.IsSegwit {
		return t.SerializeSegwit()
	} else {
		return t.SerializeLegacy()
	}
}

func (t *Transaction) SerializeLegacy() ([]byte, error) {
	// returns the byte serialization of the legacy transaction
	var result bytes.Buffer

	buf := make([]byte, 4)

	// version
	binary.LittleEndian.PutUint32(buf[:4], uint32(t.Version))
	n, err := result.Write(buf[:4])
	if err != nil || n != 4 {
		return nil, fmt.Errorf("tx serialization error (version) - %w", err)
	}

	// inputs len
	inputLen := uint64(len(t.Inputs))
	inputLenBytes, err := encoding.EncodeVarInt(inputLen)
	if err != nil {
		return nil, err
	}
	_, err = result.Write(inputLenBytes)
	if err != nil {
		return nil, fmt.Errorf("tx serialization error (inputs length) - %w", err)
	}
	// inputs slice
	for i, tx := range t.Inputs {
		data, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (input read %d) - %w", i, err)
		}
		_, err = result.Write(data)
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (input write %d) - %w", i, err)
		}
	}

	// outputs len
	outputLen := uint64(len(t.Outputs))
	outputLenBytes, err := encoding.EncodeVarInt(outputLen)
	if err != nil {
		return nil, err
	}
	_, err = result.Write(outputLenBytes)
	if err != nil {
		return nil, fmt.Errorf("tx serialization error (outputs length) - %w", err)
	}
	for i, tx := range t.Outputs {
		data, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (output read %d) - %w", i, err)
		}
		_, err = result.Write(data)
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (output write %d) - %w", i, err)
		}
	}

	// locktime
	binary.LittleEndian.PutUint32(buf[:4], uint32(t.Locktime))
	n, err = result.Write(buf[:4])
	if err != nil || n != 4 {
		return nil, fmt.Errorf("tx serialization error (locktime) - %w", err)
	}

	return result.Bytes(), nil
}

func (t *Transaction) SerializeSegwit() ([]byte, error) {
	// returns the byte serialization of the Segwit transaction
	var result bytes.Buffer

	// marker and flag bytes
	n, err := result.Write([]byte{0x00, 0x01})
	if err != nil || n != 2 {
		return nil, fmt.Errorf("tx serialization error (marker/flag) - %w", err)
	}

	buf := make([]byte, 4)
	// version
	binary.LittleEndian.PutUint32(buf[:4], uint32(t.Version))
	n, err = result.Write(buf[:4])
	if err != nil || n != 4 {
		return nil, fmt.Errorf("tx serialization error (version) - %w", err)
	}

	// inputs len
	inputLen := uint64(len(t.Inputs))
	inputLenBytes, err := encoding.EncodeVarInt(inputLen)
	if err != nil {
		return nil, err
	}
	_, err = result.Write(inputLenBytes)
	if err != nil {
		return nil, fmt.Errorf("tx serialization error (inputs length) - %w", err)
	}
	// inputs slice
	for i, tx := range t.Inputs {
		data, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (input read %d) - %w", i, err)
		}
		_, err = result.Write(data)
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (input write %d) - %w", i, err)
		}
	}

	// outputs len
	outputLen := uint64(len(t.Outputs))
	outputLenBytes, err := encoding.EncodeVarInt(outputLen)
	if err != nil {
		return nil, err
	}
	_, err = result.Write(outputLenBytes)
	if err != nil {
		return nil, fmt.Errorf("tx serialization error (outputs length) - %w", err)
	}
	for i, tx := range t.Outputs {
		data, err := tx.Serialize()
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (output read %d) - %w", i, err)
		}
		_, err = result.Write(data)
		if err != nil {
			return nil, fmt.Errorf("tx serialization error (output write %d) - %w", i, err)
		}
	}
	// witness
	for _, txin := range t.Inputs {
		numItemBytes, err := encoding.EncodeVarInt(uint64(len(txin.Witness)))
		if err != nil {
			return nil, err
		}
		// write the varint number of items
		if _, err := result.Write(numItemBytes); err != nil {
			return nil, err
		}
		for _, item := range txin.Witness {
			itemLenBytes, err := encoding.EncodeVarInt(uint64(len(item)))
			if err != nil {
				return nil, err
			}
			// write the varint length of this item
			if _, err := result.Write(itemLenBytes); err != nil {
				return nil, err
			}
			// write this item
			if _, err := result.Write(item); err != nil {
				return nil, err
			}
		}
	}
	// locktime
	binary.LittleEndian.PutUint32(buf[:4], uint32(t.Locktime))
	n, err = result.Write(buf[:4])
	if err != nil || n != 4 {
		return nil, fmt.Errorf("tx serialization error (locktime) - %w", err)
	}

	return result.Bytes(), nil
}

func ParseTransaction(r io.Reader) (Transaction, error) {
	// version
	buf := make([]byte, 5)
	n, err := r.Read(buf)
	if err != nil || n != 5 {
		return Transaction{}, fmt.Errorf("tx parse error (version and marker) - %w", err)
	}
	version := binary.LittleEndian.Uint32(buf[:4])

	if buf[4] == 0x00 {
		// marker byte for SegWit
		return ParseSegwitTransaction(r, version)
	} else {
		return ParseLegacyTransaction(r, version, buf[4])
	}
}

func ParseLegacyTransaction(r io.Reader, version uint32, firstByte byte) (Transaction, error) {
	// hacky way to "rewind" the reader for proper varint reading
	r = io.MultiReader(bytes.NewReader([]byte{firstByte}), r)

	// parse TxIn
	len, err := encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, err
	}
	var i uint64
	txins := make([]TxIn, 0, len)
	for i = 0; i < len; i++ {
		tx, err := ParseTxIn(r)
		if err != nil {
			return Transaction{}, err
		}
		txins = append(txins, tx)
	}

	// parse TxOut
	len, err = encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, err
	}
	txouts := make([]TxOut, 0, len)
	for i = 0; i < len; i++ {
		tx, err := ParseTxOut(r)
		if err != nil {
			return Transaction{}, err
		}
		txouts = append(txouts, tx)
	}

	// locktime
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	if err != nil || n != 4 {
		return Transaction{}, fmt.Errorf("tx parse error (locktime) - %w", err)
	}
	locktime := binary.LittleEndian.Uint32(buf)

	return Transaction{
		Version:  version,
		Inputs:   txins,
		Outputs:  txouts,
		Locktime: locktime,
		IsSegwit: false,
	}, nil
}

func ParseSegwitTransaction(r io.Reader, version uint32) (Transaction, error) {
	// check the flag byte (marker byte already checked)
	flag := make([]byte, 1)
	if _, err := r.Read(flag); err != nil {
		return Transaction{}, err
	}

	// parse TxIn
	len, err := encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, err
	}
	var i uint64
	txins := make([]TxIn, 0, len)
	for i = 0; i < len; i++ {
		tx, err := ParseTxIn(r)
		if err != nil {
			return Transaction{}, err
		}
		txins = append(txins, tx)
	}

	// parse TxOut
	len, err = encoding.ReadVarInt(r)
	if err != nil {
		return Transaction{}, err
	}
	txouts := make([]TxOut, 0, len)
	for i = 0; i < len; i++ {
		tx, err := ParseTxOut(r)
		if err != nil {
			return Transaction{}, err
		}
		txouts = append(txouts, tx)
	}

	// parse witnesses
	for i := range txins {
		numItems, err := encoding.ReadVarInt(r)
		if err != nil {
			return Transaction{}, err
		}
		items := make([][]byte, numItems)
		for j := uint64(0); j < numItems; j++ {
			itemLen, err := encoding.ReadVarInt(r)
			if err != nil {
				return Transaction{}, err
			}
			itemBytes := make([]byte, itemLen)
			if _, err := r.Read(itemBytes); err != nil {
				return Transaction{}, err
			}
			items = append(items, itemBytes)
		}
		txins[i].Witness = items
	}

	// parse locktime
	buf := make([]byte, 4)
	n, err := r.Read(buf)
	if err != nil || n != 4 {
		return Transaction{}, fmt.Errorf("tx parse error (locktime) - %w", err)
	}
	locktime := binary.LittleEndian.Uint32(buf)

	return Transaction{
		Version:  version,
		Inputs:   txins,
		Outputs:  txouts,
		Locktime: locktime,
		IsSegwit: true,
	}, nil
}

// SigHashWithPrevOut computes the legacy sighash for inputIndex using a
// caller-supplied previous ScriptPubKey, with no network access.
func (t *Transaction) SigHashWithPrevOut(inputIndex int, prevScriptPubKey script.Script) ([]byte, error) {
	return t.sigHash(inputIndex, prevScriptPubKey)
}

func (t *Transaction) sigHash(inputIndex int, prevScriptPubKey script.Script) ([]byte, error) {
	// check if this is P2SH - use redeemScript if so
	if script.IsP2sh(prevScriptPubKey.CommandStack) {
		scriptSig := t.Inputs[inputIndex].ScriptSig
		if len(scriptSig.CommandStack) == 0 {
			return nil, errors.New("empty ScriptSig for P2SH input")
		}
		// last element of ScriptSig is serialized redeemScript
		lastCmd := scriptSig.CommandStack[len(scriptSig.CommandStack)-1]
		if !lastCmd.IsData {
			return nil, errors.New("invalid P2SH ScriptSig: last element not data")
		}
		// In transaction.go, around line 205:
		redeemScriptData := lastCmd.Data
		// Prepend the length as a varint
		length, err := encoding.EncodeVarInt(uint64(len(redeemScriptData)))
		if err != nil {
			return nil, fmt.Errorf("failed to encode redeemScript length: %w", err)
		}
		scriptWithLength := append(length, redeemScriptData...)
		redeemScript, err := script.ParseScript(bytes.NewReader(scriptWithLength))
		if err != nil {
			return nil, fmt.Errorf("failed to parse redeemScript: %w", err)
		}
		prevScriptPubKey = redeemScript
	}
	// create a modified transaction for signing
	// 1. for the input at inputIndex, replace ScriptSig with prevScriptPubKey
	// 2. for all other inputs, set ScriptSig to empty

	// make a copy of inputs with modifications
	modifiedInputs := make([]TxIn, len(t.Inputs))
	for i, input := range t.Inputs {
		modifiedInputs[i] = TxIn{
			PrevTx:   input.PrevTx,
			PrevIdx:  input.PrevIdx,
			Sequence: input.Sequence,
		}

		if i == inputIndex {
			// this is the input we're signing - use prevScriptPubKey
			modifiedInputs[i].ScriptSig = prevScriptPubKey
		} else {
			// all other inputs get empty script
			modifiedInputs[i].ScriptSig = script.NewScript([]script.ScriptCommand{})
		}
	}

	// create modified transaction
	modifiedTx := Transaction{
		Version:   t.Version,
		Inputs:    modifiedInputs,
		Outputs:   t.Outputs,
		Locktime:  t.Locktime,
		IsTestnet: t.IsTestnet,
	}

	// serialize the modified transaction
	serialized, err := modifiedTx.Serialize()
	if err != nil {
		return nil, err
	}

	// append sighash type (SIGHASH_ALL  = 0x01000000)
	sighashType := make([]byte, 4)
	binary.LittleEndian.PutUint32(sighashType, encoding.SIGHASH_ALL)
	serialized = append(serialized, sighashType...)

	// double SHA256
	hash := encoding.Hash256(serialized)

	return hash, nil
}

// SignInputWithPrevOut signs inputIndex using a caller-supplied previous
// ScriptPubKey, with no network access.
func (t *Transaction) SignInputWithPrevOut(inputIndex int, prevScriptPubKey script.Script, privKey keys.PrivateKey, compressed bool) error {
	z, err := t.SigHashWithPrevOut(inputIndex, prevScriptPubKey)
	if err != nil {
		return err
	}
	return t.applySignature(inputIndex, z, privKey, compressed)
}

// SignInputsWithPrevOuts signs every input using the caller-supplied
// previous ScriptPubKeys (one per input, in order), with no network access.
// Used by the wallet, which already knows each spent output's ScriptPubKey
// from its UTXO view.
func (t *Transaction) SignInputsWithPrevOuts(prevScriptPubKeys []script.Script, privKey keys.PrivateKey, compressed bool) error {
	if len(prevScriptPubKeys) != len(t.Inputs) {
		return fmt.Errorf("sign inputs: got %d previous scriptPubKeys for %d inputs", len(prevScriptPubKeys), len(t.Inputs))
	}
	for i, txin := range t.Inputs {
		if err := t.SignInputWithPrevOut(i, prevScriptPubKeys[i], privKey, compressed); err != nil {
			return fmt.Errorf("error signing input %s: %w", txin, err)
		}
	}
	return nil
}

func (t *Transaction) applySignature(inputIndex int, sigHash []byte, privKey keys.PrivateKey, compressed bool) error {
	sig, err := privKey.SignHash(sigHash)
	if err != nil {
		return err
	}

	derSig := sig.Serialize()
	sighashType := make([]byte, 4)
	binary.LittleEndian.PutUint32(sighashType, encoding.SIGHASH_ALL)
	derSigWithHashType := append(derSig, sighashType...)

	publicKey := privKey.PublicKey()
	secPubKey := publicKey.Serialize(compressed)

	scriptSig := script.NewScript([]script.ScriptCommand{
		{IsData: true, Data: derSigWithHashType},
		{IsData: true, Data: secPubKey},
	})

	t.Inputs[inputIndex].ScriptSig = scriptSig
	return nil
}

func (t *Transaction) isCoinbase() bool {
	// coinbase transactions must have exactly one input
	if len(t.Inputs) != 1 {
		return false
	}
	// the one input must have a previous transaction of 32 bytes of 00
	if !slices.Equal(t.Inputs[0].PrevTx, bytes.Repeat([]byte{0x00}, 32)) {
		return false
	}
	// the one input must have a previous index of ffffffff
	if t.Inputs[0].PrevIdx != 0xffffffff {
		return false
	}
	return true
}

func (t *Transaction) coinbaseHeight() int64 {
	if !t.isCoinbase() {
		return -1
	}
	element := t.Inputs[0].ScriptSig.CommandStack[0]
	return script.DecodeNum(element.Data)
}

