// Package wallet manages the signing account and its active chain. The
// engine treats (account, chain) as the selection identity: switching either
// one resets input state and discards in-flight reads.
package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityHub/internal/model"
)

// Wallet is a connected signing account.
type Wallet interface {
	Connect(ctx context.Context) error
	Disconnect()
	Account() (common.Address, bool)
	ChainID() (uint64, bool)
	SwitchChain(ctx context.Context, chainID uint64) error
}

// KeyWallet signs with a locally held private key. The supported chain set
// is fixed at construction; switching to an unknown chain fails without
// touching the current selection.
type KeyWallet struct {
	mu        sync.Mutex
	key       *ecdsa.PrivateKey
	account   common.Address
	chainID   uint64
	connected bool

	chains map[uint64]model.ChainDescriptor
	logger *zap.Logger

	// OnChainSwitch observes successful chain switches.
	OnChainSwitch func(uint64)
}

// NewKeyWallet builds a wallet from a hex-encoded private key.
func NewKeyWallet(keyHex string, chains []model.ChainDescriptor, logger *zap.Logger) (*KeyWallet, error) {
	keyHex = strings.TrimPrefix(strings.TrimSpace(keyHex), "0x")
	if keyHex == "" {
		return nil, fmt.Errorf("private key is empty")
	}
	key, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	w := &KeyWallet{
		key:     key,
		account: crypto.PubkeyToAddress(key.PublicKey),
		chains:  make(map[uint64]model.ChainDescriptor, len(chains)),
		logger:  logger,
	}
	for _, c := range chains {
		w.chains[c.ChainID] = c
	}
	return w, nil
}

// NewKeyWalletFromFile reads a hex-encoded private key from a file.
func NewKeyWalletFromFile(path string, chains []model.ChainDescriptor, logger *zap.Logger) (*KeyWallet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read key file: %w", err)
	}
	return NewKeyWallet(string(raw), chains, logger)
}

// Connect marks the wallet usable. A key wallet has nothing to handshake,
// but callers still gate all signing behind a connected wallet.
func (w *KeyWallet) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = true
	w.logger.Info("wallet connected", zap.String("account", w.account.Hex()))
	return nil
}

func (w *KeyWallet) Disconnect() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.connected = false
	w.chainID = 0
}

// Account returns the signing address once connected.
func (w *KeyWallet) Account() (common.Address, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected {
		return common.Address{}, false
	}
	return w.account, true
}

// ChainID returns the active chain, if one has been selected.
func (w *KeyWallet) ChainID() (uint64, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.connected || w.chainID == 0 {
		return 0, false
	}
	return w.chainID, true
}

// SwitchChain selects the active chain.
func (w *KeyWallet) SwitchChain(ctx context.Context, chainID uint64) error {
	w.mu.Lock()
	if !w.connected {
		w.mu.Unlock()
		return fmt.Errorf("wallet not connected")
	}
	if _, ok := w.chains[chainID]; !ok {
		w.mu.Unlock()
		return fmt.Errorf("chain %d not supported", chainID)
	}
	w.chainID = chainID
	hook := w.OnChainSwitch
	w.mu.Unlock()

	w.logger.Info("chain switched", zap.Uint64("chain_id", chainID))
	if hook != nil {
		hook(chainID)
	}
	return nil
}

// Key exposes the private key for transaction signing.
func (w *KeyWallet) Key() *ecdsa.PrivateKey {
	return w.key
}
