// Command spvnode is the host app's CLI surface: it loads a config file,
// brings up the chain store and wallet from disk (or genesis/empty if
// absent), dials the configured peer seeds, runs the handshake and Initial
// Header Download, then hands everything to the peer manager's
// broadcasting loop. The GUI and TUI front-ends are external collaborators
// that talk to the running node only through internal/frontend's bridge;
// this entrypoint stands in for both with a bare front-end that logs
// notifications. The node runs until SIGINT or SIGTERM sends ExitProgram,
// then saves the chain snapshot and the wallet and exits.
package main

import (
	"flag"
	"fmt"
	"go-bitcoin/internal/chain"
	"go-bitcoin/internal/config"
	"go-bitcoin/internal/frontend"
	"go-bitcoin/internal/logging"
	"go-bitcoin/internal/network"
	"go-bitcoin/internal/peer"
	"go-bitcoin/internal/storage"
	"go-bitcoin/internal/wallet"
	"os"
	"os/signal"
	"syscall"
)

const userAgent = "/spvnode:0.1/"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "spvnode: missing subcommand, expected tui|gui")
		return 1
	}
	frontEnd, rest := args[0], args[1:]
	switch frontEnd {
	case "tui", "gui":
		// Both subcommands drive the same bridge contract (internal/frontend);
		// this entrypoint stands in for either with a log-only front-end.
	default:
		fmt.Fprintf(os.Stderr, "spvnode: unknown subcommand %q, expected tui|gui\n", frontEnd)
		return 1
	}

	fs := flag.NewFlagSet("spvnode "+frontEnd, flag.ContinueOnError)
	configPath := fs.String("config", "", "path to config file (required)")
	if err := fs.Parse(rest); err != nil {
		return 1
	}
	if *configPath == "" {
		fmt.Fprintln(os.Stderr, "spvnode: --config PATH is required")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spvnode: config error: %v\n", err)
		return 1
	}

	log, err := logging.New(cfg.LogPath, logging.LevelInfo)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spvnode: cannot open log file: %v\n", err)
		return 1
	}

	net_, err := parseNetwork(cfg.Network)
	if err != nil {
		fmt.Fprintf(os.Stderr, "spvnode: %v\n", err)
		return 1
	}

	chainDB, err := storage.Open(cfg.BlockchainPath)
	if err != nil {
		log.Error("blockchain store: %v", err)
		fmt.Fprintf(os.Stderr, "spvnode: blockchain store: %v\n", err)
		return 3
	}
	defer chainDB.Close()

	chainStore, err := openChain(chainDB, net_)
	if err != nil {
		log.Error("blockchain store: %v", err)
		fmt.Fprintf(os.Stderr, "spvnode: blockchain store: %v\n", err)
		return 3
	}

	walletDB, err := storage.Open(cfg.WalletPath)
	if err != nil {
		log.Error("wallet store: %v", err)
		fmt.Fprintf(os.Stderr, "spvnode: wallet store: %v\n", err)
		return 3
	}
	defer walletDB.Close()

	w, err := wallet.Load(walletDB)
	if err != nil {
		log.Error("wallet store: %v", err)
		fmt.Fprintf(os.Stderr, "spvnode: wallet store: %v\n", err)
		return 3
	}

	bridge := frontend.NewBridge(frontend.DefaultCapacity)
	mgr := peer.NewManager(chainStore, w, bridge, log, net_)

	peers, dialErrs := peer.ConnectAll(cfg.PeerSeeds, net_.DefaultPort(), net_, cfg.ProtocolVersion, userAgent, int32(chainStore.TipHeight()), false)
	for _, derr := range dialErrs {
		log.Warn("peer dial failed: %v", derr)
	}
	if len(peers) == 0 {
		log.Error("no peers reachable from %d seeds", len(cfg.PeerSeeds))
		fmt.Fprintln(os.Stderr, "spvnode: no peers reachable")
		return 2
	}

	if err := peer.RunIHD(peers, chainStore, cfg.ProtocolVersion, log); err != nil {
		log.Error("initial header download: %v", err)
	}

	peer.DownloadRecentBlocks(peers, chainStore, peer.DefaultBlockWindow, peer.DefaultInFlightCap, peer.DefaultBlockTimeout, log)

	for _, pc := range peers {
		if pc.State() == network.Ready {
			mgr.AddPeer(pc)
		}
	}
	bridge.Notify(frontend.Notification{Kind: frontend.NotifyBlockchainIsReady})

	go drainNotifications(bridge, log)
	go waitForSignal(bridge)

	mgr.Run()

	if err := chainStore.SaveSnapshot(chainDB); err != nil {
		log.Warn("saving blockchain snapshot: %v", err)
	}
	if err := w.Save(walletDB); err != nil {
		log.Warn("saving wallet: %v", err)
	}

	log.Info("spvnode stopped")
	return 0
}

func parseNetwork(name string) (network.Net, error) {
	switch name {
	case "mainnet":
		return network.Mainnet, nil
	case "testnet":
		return network.Testnet, nil
	case "regtest":
		return network.Regtest, nil
	default:
		return 0, fmt.Errorf("unknown network %q", name)
	}
}

// openChain loads a persisted snapshot if one exists, otherwise seeds a
// fresh store at genesis.
func openChain(st *storage.Store, net_ network.Net) (*chain.Store, error) {
	loaded, err := chain.LoadSnapshot(st)
	if err == nil {
		return loaded, nil
	}

	genesis, gerr := chain.GenesisHeader(net_)
	if gerr != nil {
		return nil, gerr
	}
	return chain.NewStore(genesis)
}

// drainNotifications stands in for a real front-end: it logs every
// notification the peer manager emits.
func drainNotifications(bridge *frontend.Bridge, log *logging.Logger) {
	for n := range bridge.Notifications {
		log.Info("notification: kind=%d account=%q message=%q", n.Kind, n.AccountName, n.Message)
	}
}

// waitForSignal translates OS interruption into the bridge's ExitProgram
// command, matching the front-end's own shutdown path so the broadcasting
// loop always exits the same way.
func waitForSignal(bridge *frontend.Bridge) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	bridge.SendCommand(frontend.Command{Kind: frontend.ExitProgram})
}
