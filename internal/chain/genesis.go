package chain

import (
	"bytes"
	"fmt"
	"go-bitcoin/internal/block"
	"go-bitcoin/internal/network"
)

// regtestGenesisBlock is regtest's genesis header: the same coinbase as
// mainnet/testnet (hence the shared merkle root) but the minimum-difficulty
// bits regtest mines at and a small fixed nonce, so a local pair of nodes
// can stand up a chain without burning any real proof-of-work.
var regtestGenesisBlock = []byte{
	0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	0x00, 0x00, 0x00, 0x00, 0x3b, 0xa3, 0xed, 0xfd,
	0x7a, 0x7b, 0x12, 0xb2, 0x7a, 0xc7, 0x2c, 0x3e,
	0x67, 0x76, 0x8f, 0x61, 0x7f, 0xc8, 0x1b, 0xc3,
	0x88, 0x8a, 0x51, 0x32, 0x3a, 0x9f, 0xb8, 0xaa,
	0x4b, 0x1e, 0x5e, 0x4a, 0xda, 0xe5, 0x49, 0x4d,
	0xff, 0xff, 0x7f, 0x20, 0x02, 0x00, 0x00, 0x00,
}

// GenesisHeader returns the hardcoded genesis block header for the given
// network, ready to seed a fresh Store via NewStore.
func GenesisHeader(net network.Net) (block.Block, error) {
	var raw []byte
	switch net {
	case network.Mainnet:
		raw = block.MAINNET_GENESIS_BLOCK
	case network.Testnet:
		raw = block.TESTNET_GENESIS_BLOCK
	case network.Regtest:
		raw = regtestGenesisBlock
	default:
		return block.Block{}, fmt.Errorf("chain: unknown network %v", net)
	}
	h, err := block.ParseBlock(bytes.NewReader(raw))
	if err != nil {
		return block.Block{}, fmt.Errorf("chain: parse genesis: %w", err)
	}
	return h, nil
}
