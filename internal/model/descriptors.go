package model

import (
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// NativeAddress is the conventional placeholder address for a chain's native
// (non-contract) asset. Native assets carry no allowance and are always
// implicitly approved.
var NativeAddress = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

// ChainDescriptor is the static description of a supported chain.
type ChainDescriptor struct {
	ChainID      uint64 `json:"chain_id"`
	Name         string `json:"name"`
	ExplorerURL  string `json:"explorer_url"`
	NativeSymbol string `json:"native_symbol"`
}

// TxURL builds an explorer link for a transaction hash.
func (c ChainDescriptor) TxURL(hash common.Hash) string {
	return fmt.Sprintf("%s/tx/%s", strings.TrimRight(c.ExplorerURL, "/"), hash.Hex())
}

// TokenChainConfig is a token's deployment on one chain.
type TokenChainConfig struct {
	Address  common.Address `json:"address"`
	Decimals uint8          `json:"decimals"`
}

// TokenDescriptor is the static description of a supported token across
// chains. PriceFeedID is the external price-feed identifier, empty when the
// token has no feed.
type TokenDescriptor struct {
	Symbol      string                      `json:"symbol"`
	PriceFeedID string                      `json:"price_feed_id"`
	Chains      map[uint64]TokenChainConfig `json:"chains"`
}

// OnChain returns the token's deployment on the given chain.
func (t TokenDescriptor) OnChain(chainID uint64) (TokenChainConfig, bool) {
	cfg, ok := t.Chains[chainID]
	return cfg, ok
}

// IsNative reports whether the token is the chain's native asset.
func (t TokenDescriptor) IsNative(chainID uint64) bool {
	cfg, ok := t.Chains[chainID]
	return ok && cfg.Address == NativeAddress
}
