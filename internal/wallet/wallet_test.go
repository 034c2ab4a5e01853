package wallet

import (
	"context"
	"testing"

	"liquidityHub/internal/model"
)

// Well-known anvil test key, not a live account.
const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var testChains = []model.ChainDescriptor{
	{ChainID: 137, Name: "Polygon"},
	{ChainID: 43114, Name: "Avalanche"},
}

func TestKeyWalletLifecycle(t *testing.T) {
	w, err := NewKeyWallet("0x"+testKey, testChains, nil)
	if err != nil {
		t.Fatalf("NewKeyWallet: %v", err)
	}

	if _, ok := w.Account(); ok {
		t.Fatal("account visible before connect")
	}

	if err := w.Connect(context.Background()); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	account, ok := w.Account()
	if !ok {
		t.Fatal("account not available after connect")
	}
	if account.Hex() != "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266" {
		t.Fatalf("unexpected account %s", account.Hex())
	}

	if _, ok := w.ChainID(); ok {
		t.Fatal("chain selected before SwitchChain")
	}

	var switched uint64
	w.OnChainSwitch = func(id uint64) { switched = id }
	if err := w.SwitchChain(context.Background(), 137); err != nil {
		t.Fatalf("SwitchChain: %v", err)
	}
	if id, ok := w.ChainID(); !ok || id != 137 {
		t.Fatalf("chain = %d, %v", id, ok)
	}
	if switched != 137 {
		t.Fatal("switch hook not invoked")
	}

	// Unknown chain leaves the current selection intact.
	if err := w.SwitchChain(context.Background(), 1); err == nil {
		t.Fatal("expected error for unsupported chain")
	}
	if id, _ := w.ChainID(); id != 137 {
		t.Fatalf("selection changed to %d after failed switch", id)
	}

	w.Disconnect()
	if _, ok := w.Account(); ok {
		t.Fatal("account visible after disconnect")
	}
}

func TestNewKeyWalletRejectsBadKey(t *testing.T) {
	if _, err := NewKeyWallet("", testChains, nil); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, err := NewKeyWallet("zz", testChains, nil); err == nil {
		t.Fatal("malformed key accepted")
	}
}
