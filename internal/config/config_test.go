package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeConfig(t, `{
		"network": "testnet",
		"peer_seeds": ["testnet-seed.bitcoin.jonasschnelli.ch:18333"],
		"wallet_path": "wallet.dat",
		"blockchain_path": "chain.dat",
		"log_path": "node.log",
		"protocol_version": 70015
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Network != "testnet" {
		t.Fatalf("expected network testnet, got %q", cfg.Network)
	}
	if len(cfg.PeerSeeds) != 1 {
		t.Fatalf("expected 1 peer seed, got %d", len(cfg.PeerSeeds))
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nonexistent.json")); err == nil {
		t.Fatalf("expected an error loading a nonexistent config file")
	}
}

func TestLoadMalformedJSON(t *testing.T) {
	path := writeConfig(t, `{not json`)
	if _, err := Load(path); err == nil {
		t.Fatalf("expected an error parsing malformed JSON")
	}
}

func TestLoadAppliesDefaultsThenValidates(t *testing.T) {
	// Omits every field except network; the rest should come from
	// DefaultConfig() and still validate cleanly.
	path := writeConfig(t, `{"network": "regtest"}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.ProtocolVersion != DefaultConfig().ProtocolVersion {
		t.Fatalf("expected protocol_version to fall back to the default")
	}
}

func TestValidateRejectsUnknownNetwork(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Network = "signet"
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for an unsupported network")
	}
}

func TestValidateRejectsEmptyPeerSeeds(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeerSeeds = nil
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for empty peer_seeds")
	}
}

func TestValidateRejectsBadSeedPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeerSeeds = []string{"seed.example.com:"}
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for a seed with a missing port")
	}
}

func TestValidateAcceptsBareHostnameSeed(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PeerSeeds = []string{"seed.example.com"}
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected a bare hostname seed to validate, got %v", err)
	}
}

func TestValidateRejectsMissingPaths(t *testing.T) {
	base := DefaultConfig()

	withoutWallet := base
	withoutWallet.WalletPath = "  "
	if err := Validate(withoutWallet); err == nil {
		t.Fatalf("expected an error for blank wallet_path")
	}

	withoutChain := base
	withoutChain.BlockchainPath = ""
	if err := Validate(withoutChain); err == nil {
		t.Fatalf("expected an error for blank blockchain_path")
	}

	withoutLog := base
	withoutLog.LogPath = ""
	if err := Validate(withoutLog); err == nil {
		t.Fatalf("expected an error for blank log_path")
	}
}

func TestValidateRejectsNonPositiveProtocolVersion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProtocolVersion = 0
	if err := Validate(cfg); err == nil {
		t.Fatalf("expected an error for protocol_version <= 0")
	}
}
