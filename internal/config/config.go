// Package config loads the node's runtime configuration: which network to
// join, where to find peers, and where on disk the chain and wallet state
// live.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
)

type Config struct {
	Network         string   `json:"network"`
	PeerSeeds       []string `json:"peer_seeds"`
	WalletPath      string   `json:"wallet_path"`
	BlockchainPath  string   `json:"blockchain_path"`
	LogPath         string   `json:"log_path"`
	ProtocolVersion int32    `json:"protocol_version"`
}

func DefaultConfig() Config {
	return Config{
		Network:         "mainnet",
		PeerSeeds:       []string{"seed.bitcoin.sipa.be:8333"},
		WalletPath:      "wallet.dat",
		BlockchainPath:  "blockchain.dat",
		LogPath:         "spvnode.log",
		ProtocolVersion: 70015,
	}
}

// Load reads and validates a JSON config file at path.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch strings.ToLower(cfg.Network) {
	case "mainnet", "testnet", "regtest":
	default:
		return fmt.Errorf("network must be one of mainnet/testnet/regtest, got %q", cfg.Network)
	}
	if len(cfg.PeerSeeds) == 0 {
		return errors.New("peer_seeds is required")
	}
	for _, seed := range cfg.PeerSeeds {
		if err := validateSeed(seed); err != nil {
			return fmt.Errorf("invalid peer_seed %q: %w", seed, err)
		}
	}
	if strings.TrimSpace(cfg.WalletPath) == "" {
		return errors.New("wallet_path is required")
	}
	if strings.TrimSpace(cfg.BlockchainPath) == "" {
		return errors.New("blockchain_path is required")
	}
	if strings.TrimSpace(cfg.LogPath) == "" {
		return errors.New("log_path is required")
	}
	if cfg.ProtocolVersion <= 0 {
		return errors.New("protocol_version must be > 0")
	}
	return nil
}

// validateSeed accepts either "host:port" or a bare hostname (resolved
// against the network's default port by the caller).
func validateSeed(seed string) error {
	seed = strings.TrimSpace(seed)
	if seed == "" {
		return errors.New("empty seed")
	}
	if !strings.Contains(seed, ":") {
		return nil
	}
	_, port, err := net.SplitHostPort(seed)
	if err != nil {
		return err
	}
	if strings.TrimSpace(port) == "" {
		return errors.New("missing port")
	}
	return nil
}
