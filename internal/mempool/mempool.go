package mempool

import (
	"go-bitcoin/internal/transactions"
	"sync"
)

type Mempool struct {
	txs map[[32]byte]*transactions.Transaction // txid -> transaction
	mu  sync.Mutex
}

func New() *Mempool {
	return &Mempool{
		txs: make(map[[32]byte]*transactions.Transaction),
	}
}

func (m *Mempool) Add(tx *transactions.Transaction) error {
	txid, err := tx.Hash()
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.txs[txid] = tx
	m.mu.Unlock()
	return nil
}

func (m *Mempool) Get(txid [32]byte) (*transactions.Transaction, bool) {
	m.mu.Lock()
	tx, exists := m.txs[txid]
	m.mu.Unlock()
	return tx, exists
}

func (m *Mempool) Remove(txid [32]byte) {
	m.mu.Lock()
	delete(m.txs, txid)
	m.mu.Unlock()
}

func (m *Mempool) All() []*transactions.Transaction {
	result := make([]*transactions.Transaction, 0, len(m.txs))
	m.mu.Lock()
	for _, tx := range m.txs {
		result = append(result, tx)
	}
	m.mu.Unlock()
	return result
}
