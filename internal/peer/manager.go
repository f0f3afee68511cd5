package peer

import (
	"bytes"
	"go-bitcoin/internal/address"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/frontend"
	"go-bitcoin/internal/keys"
	"go-bitcoin/internal/logging"
	"go-bitcoin/internal/mempool"
	"go-bitcoin/internal/network"
	"go-bitcoin/internal/wallet"
	"slices"
	"sync"
	"time"
)

// Manager is the long-running broadcasting loop: it owns every Ready peer
// plus the shared chain and wallet state, and is the sole mutator of both
// (per the single-owner concurrency model — reader goroutines only ever
// push parsed envelopes into a channel, never touch shared state).
type Manager struct {
	Chain  *chain.Store
	Wallet *wallet.Wallet
	Bridge *frontend.Bridge
	Log    *logging.Logger
	Net    network.Net

	// Mempool tracks transactions seen via Inv/Tx so re-announcements don't
	// trigger a redundant GetData round trip.
	Mempool *mempool.Mempool

	peersMu sync.Mutex
	peers   []*network.PeerConnection

	inbound chan peerEnvelope
	done    chan struct{}
}

type peerEnvelope struct {
	peer *network.PeerConnection
	env  network.NetworkEnvelope
}

func NewManager(chainStore *chain.Store, w *wallet.Wallet, bridge *frontend.Bridge, log *logging.Logger, net_ network.Net) *Manager {
	return &Manager{
		Chain:   chainStore,
		Wallet:  w,
		Bridge:  bridge,
		Log:     log,
		Net:     net_,
		Mempool: mempool.New(),
		inbound: make(chan peerEnvelope, 256),
		done:    make(chan struct{}),
	}
}

// AddPeer registers a Ready peer and starts forwarding its inbound queue
// into the manager's aggregate channel, in that peer's wire order.
func (m *Manager) AddPeer(pc *network.PeerConnection) {
	m.peersMu.Lock()
	m.peers = append(m.peers, pc)
	m.peersMu.Unlock()
	go m.forward(pc)
}

func (m *Manager) forward(pc *network.PeerConnection) {
	for env := range pc.Inbound {
		select {
		case m.inbound <- peerEnvelope{peer: pc, env: env}:
		case <-m.done:
			return
		}
	}
}

func (m *Manager) readyPeers() []*network.PeerConnection {
	m.peersMu.Lock()
	defer m.peersMu.Unlock()
	return readyPeers(m.peers)
}

// Run is the broadcasting loop: it multiplexes front-end commands and
// inbound peer messages, in arrival order per source with no ordering
// guaranteed between the two streams. Returns when ExitProgram is handled.
func (m *Manager) Run() {
	for {
		select {
		case cmd := <-m.Bridge.Commands:
			if m.handleCommand(cmd) {
				m.shutdown()
				return
			}
		case pe := <-m.inbound:
			m.handleInbound(pe)
		}
	}
}

func (m *Manager) shutdown() {
	close(m.done)
	m.peersMu.Lock()
	defer m.peersMu.Unlock()
	for _, pc := range m.peers {
		pc.Close()
	}
}

// handleCommand dispatches one front-end command. Returns true iff the
// loop should exit (ExitProgram).
func (m *Manager) handleCommand(cmd frontend.Command) bool {
	switch cmd.Kind {
	case frontend.ChangeSelectedAccount:
		if err := m.Wallet.SelectAccount(cmd.AccountName); err != nil {
			m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInAccountCreation, Message: err.Error()})
		}

	case frontend.CreateAccount:
		m.handleCreateAccount(cmd)

	case frontend.CreateTransaction:
		m.handleCreateTransaction(cmd)

	case frontend.GetAccountBalance:
		m.handleGetAccountBalance()

	case frontend.GetAccountTransactions:
		m.handleGetAccountTransactions()

	case frontend.ExitProgram:
		return true
	}
	return false
}

func (m *Manager) handleCreateAccount(cmd frontend.Command) {
	var raw [32]byte
	copy(raw[:], cmd.PrivateKey)
	privKey, err := wallet.ParsePrivateKey(raw)
	if err != nil {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInAccountCreation, Message: err.Error()})
		return
	}

	account := wallet.NewAccount(cmd.AccountName, privKey)

	if len(cmd.PublicKey) > 0 {
		pub, err := keys.ParsePublicKey(bytes.NewReader(cmd.PublicKey))
		if err != nil {
			m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInAccountCreation, Message: err.Error()})
			return
		}
		if err := wallet.VerifyKeypair(privKey, *pub); err != nil {
			m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInAccountCreation, Message: err.Error()})
			return
		}
	}

	m.Wallet.AddAccount(account)
	m.Bridge.Notify(frontend.Notification{Kind: frontend.RegisterAccount, AccountName: cmd.AccountName})
}

func (m *Manager) handleCreateTransaction(cmd frontend.Command) {
	account, err := m.Wallet.SelectedAccount()
	if err != nil {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInTransaction, Message: err.Error()})
		return
	}

	tx, err := wallet.CreateTransaction(account, addressNetwork(m.Net), cmd.ToAddress, uint64(cmd.Amount), uint64(cmd.Fee))
	if err != nil {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInTransaction, Message: err.Error()})
		return
	}

	msg := network.TxMessage{Tx: tx}
	for _, pc := range m.readyPeers() {
		if err := pc.Send(&msg); err != nil && m.Log != nil {
			m.Log.Warn("broadcast to %s failed: %v", pc.Addr, err)
		}
	}
}

func (m *Manager) handleGetAccountBalance() {
	account, err := m.Wallet.SelectedAccount()
	if err != nil {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInTransaction, Message: err.Error()})
		return
	}
	confirmed := float64(account.Utxos.ConfirmedBalance()) / 1e8
	pending := float64(account.Utxos.PendingBalance()) / 1e8
	m.Bridge.Notify(frontend.Notification{Kind: frontend.LoadAvailableBalance, Confirmed: confirmed, Pending: pending})
}

func (m *Manager) handleGetAccountTransactions() {
	account, err := m.Wallet.SelectedAccount()
	if err != nil {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.ErrorInTransaction, Message: err.Error()})
		return
	}
	txs := make([]frontend.AccountTransaction, len(account.History))
	for i, rec := range account.History {
		txs[i] = frontend.AccountTransaction{Timestamp: rec.Timestamp, TxID: rec.TxID, Amount: rec.Amount}
	}
	m.Bridge.Notify(frontend.Notification{Kind: frontend.AccountTransactions, Transactions: txs})
}

// handleInbound dispatches one inbound peer message per spec.md's Peer
// Manager rules. Ping/Pong is already handled transparently by the peer
// connection's own auto-responder; everything else lands here.
func (m *Manager) handleInbound(pe peerEnvelope) {
	switch pe.env.Command {
	case "inv":
		m.handleInv(pe)
	case "tx":
		m.handleTx(pe)
	case "block":
		m.handleBlock(pe)
	}
}

func (m *Manager) handleInv(pe peerEnvelope) {
	inv, err := network.ParseInvMessage(bytes.NewReader(pe.env.Payload))
	if err != nil {
		return
	}
	var wanted network.GetDataMessage
	for _, item := range inv.Data {
		switch item.Type {
		case network.DATA_TYPE_TX:
			// Identifier is wire order (internal/little-endian); Mempool
			// keys by the display-order hash Transaction.Hash returns, so
			// reverse before the lookup.
			txid := item.Identifier
			slices.Reverse(txid[:])
			if _, known := m.Mempool.Get(txid); known {
				continue
			}
			wanted.AddData(item.Type, item.Identifier)
		case network.DATA_TYPE_BLOCK:
			wanted.AddData(item.Type, item.Identifier)
		}
	}
	if len(wanted.Data) > 0 {
		if err := pe.peer.Send(&wanted); err != nil && m.Log != nil {
			m.Log.Warn("getdata to %s failed: %v", pe.peer.Addr, err)
		}
	}
}

func (m *Manager) handleTx(pe peerEnvelope) {
	txMsg, err := network.ParseTxMessage(bytes.NewReader(pe.env.Payload))
	if err != nil {
		return
	}
	if err := m.Mempool.Add(txMsg.Tx); err != nil && m.Log != nil {
		m.Log.Warn("mempool add from %s failed: %v", pe.peer.Addr, err)
	}
	account, err := m.Wallet.SelectedAccount()
	if err != nil {
		return
	}
	touched, _ := account.ApplyTransaction(txMsg.Tx, uint32(time.Now().Unix()), false)
	if touched {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.TransactionOfAccountReceived, AccountName: account.Name})
	}
}

func (m *Manager) handleBlock(pe peerEnvelope) {
	blockMsg, err := network.ParseBlockMessage(bytes.NewReader(pe.env.Payload))
	if err != nil {
		return
	}

	valid, err := blockMsg.Block.ValidateMerkleRoot()
	if err != nil {
		if m.Log != nil {
			m.Log.Warn("rejecting block from %s: merkle check failed: %v", pe.peer.Addr, err)
		}
		return
	}
	if !valid {
		if m.Log != nil {
			m.Log.Warn("rejecting block from %s: merkle root mismatch", pe.peer.Addr)
		}
		return
	}

	if _, err := m.Chain.AppendHeader(*blockMsg.Block.BlockHeader); err != nil {
		if m.Log != nil {
			m.Log.Warn("rejecting block from %s: %v", pe.peer.Addr, err)
		}
		return
	}

	touchedAny := false
	account, err := m.Wallet.SelectedAccount()
	if err == nil {
		for _, tx := range blockMsg.Block.Txs {
			touched, _ := account.ApplyTransaction(tx, blockMsg.Block.BlockHeader.TimeStamp, true)
			touchedAny = touchedAny || touched
		}
	}

	if touchedAny {
		m.Bridge.Notify(frontend.Notification{Kind: frontend.BlockWithUnconfirmedTransactionReceived})
	}
	m.Bridge.Notify(frontend.Notification{Kind: frontend.Update})
}

func addressNetwork(n network.Net) address.Network {
	if n == network.Mainnet {
		return address.MAINNET
	}
	return address.TESTNET
}
