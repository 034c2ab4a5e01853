package config

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"liquidityHub/internal/contracts"
	"liquidityHub/internal/model"
)

// Chain is one supported chain together with its deployed contract set.
type Chain struct {
	model.ChainDescriptor
	Contracts contracts.Addresses
}

// Registry is the validated static description of supported chains and
// tokens. It is loaded once at startup; lookups never hit the network.
type Registry struct {
	chains  map[uint64]Chain
	tokens  map[string]model.TokenDescriptor
	byAddr  map[uint64]map[common.Address]string
	ordered []string
}

type registryFile struct {
	Chains []struct {
		model.ChainDescriptor
		Contracts struct {
			LiquidityPool    common.Address `json:"liquidity_pool"`
			LPToken          common.Address `json:"lp_token"`
			WhitelistManager common.Address `json:"whitelist_manager"`
			LiquidityFarming common.Address `json:"liquidity_farming"`
		} `json:"contracts"`
	} `json:"chains"`
	Tokens []model.TokenDescriptor `json:"tokens"`
}

// LoadRegistry reads and validates the registry file. Every token deployment
// must reference a declared chain; a registry that passes validation cannot
// produce dangling lookups later.
func LoadRegistry(path string) (*Registry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}

	var file registryFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse registry: %w", err)
	}

	r := &Registry{
		chains: make(map[uint64]Chain),
		tokens: make(map[string]model.TokenDescriptor),
		byAddr: make(map[uint64]map[common.Address]string),
	}

	if len(file.Chains) == 0 {
		return nil, fmt.Errorf("registry declares no chains")
	}
	for _, c := range file.Chains {
		if c.ChainID == 0 {
			return nil, fmt.Errorf("chain %q: missing chain_id", c.Name)
		}
		if _, dup := r.chains[c.ChainID]; dup {
			return nil, fmt.Errorf("chain %d declared twice", c.ChainID)
		}
		if c.ExplorerURL == "" {
			return nil, fmt.Errorf("chain %d: missing explorer_url", c.ChainID)
		}
		if c.Contracts.LiquidityPool == (common.Address{}) {
			return nil, fmt.Errorf("chain %d: missing liquidity_pool contract", c.ChainID)
		}
		r.chains[c.ChainID] = Chain{
			ChainDescriptor: c.ChainDescriptor,
			Contracts: contracts.Addresses{
				LiquidityPool:    c.Contracts.LiquidityPool,
				LPToken:          c.Contracts.LPToken,
				WhitelistManager: c.Contracts.WhitelistManager,
				LiquidityFarming: c.Contracts.LiquidityFarming,
			},
		}
		r.byAddr[c.ChainID] = make(map[common.Address]string)
	}

	if len(file.Tokens) == 0 {
		return nil, fmt.Errorf("registry declares no tokens")
	}
	for _, t := range file.Tokens {
		symbol := strings.ToUpper(t.Symbol)
		if symbol == "" {
			return nil, fmt.Errorf("token with empty symbol")
		}
		if _, dup := r.tokens[symbol]; dup {
			return nil, fmt.Errorf("token %s declared twice", symbol)
		}
		if len(t.Chains) == 0 {
			return nil, fmt.Errorf("token %s: deployed on no chains", symbol)
		}
		for chainID, cfg := range t.Chains {
			if _, ok := r.chains[chainID]; !ok {
				return nil, fmt.Errorf("token %s references undeclared chain %d", symbol, chainID)
			}
			if cfg.Address == (common.Address{}) {
				return nil, fmt.Errorf("token %s on chain %d: missing address", symbol, chainID)
			}
			if cfg.Decimals == 0 {
				return nil, fmt.Errorf("token %s on chain %d: missing decimals", symbol, chainID)
			}
			if prev, taken := r.byAddr[chainID][cfg.Address]; taken {
				return nil, fmt.Errorf("token %s on chain %d reuses address of %s", symbol, chainID, prev)
			}
			r.byAddr[chainID][cfg.Address] = symbol
		}
		t.Symbol = symbol
		r.tokens[symbol] = t
		r.ordered = append(r.ordered, symbol)
	}
	sort.Strings(r.ordered)

	return r, nil
}

// Chain returns the descriptor and contract set for a chain ID.
func (r *Registry) Chain(chainID uint64) (Chain, bool) {
	c, ok := r.chains[chainID]
	return c, ok
}

// Token looks a token up by symbol, case-insensitively.
func (r *Registry) Token(symbol string) (model.TokenDescriptor, bool) {
	t, ok := r.tokens[strings.ToUpper(symbol)]
	return t, ok
}

// TokenByAddress resolves a deployed token contract back to its descriptor.
func (r *Registry) TokenByAddress(chainID uint64, addr common.Address) (model.TokenDescriptor, bool) {
	symbols, ok := r.byAddr[chainID]
	if !ok {
		return model.TokenDescriptor{}, false
	}
	symbol, ok := symbols[addr]
	if !ok {
		return model.TokenDescriptor{}, false
	}
	return r.tokens[symbol], true
}

// Tokens returns all tokens in symbol order.
func (r *Registry) Tokens() []model.TokenDescriptor {
	out := make([]model.TokenDescriptor, 0, len(r.ordered))
	for _, s := range r.ordered {
		out = append(out, r.tokens[s])
	}
	return out
}
