package contracts

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"liquidityHub/internal/chain"
	"liquidityHub/internal/model"
)

// Addresses holds the deployed contract addresses for one chain.
type Addresses struct {
	LiquidityPool    common.Address
	LPToken          common.Address
	WhitelistManager common.Address
	LiquidityFarming common.Address
}

// Caller implements Reader and Signer against a live chain via eth_call and
// signed transactions.
type Caller struct {
	client  *chain.Client
	addrs   Addresses
	key     *ecdsa.PrivateKey
	from    common.Address
	chainID *big.Int
	logger  *zap.Logger
}

// NewCaller builds a contract caller. The private key may be nil for a
// read-only caller; Signer methods then fail.
func NewCaller(ctx context.Context, client *chain.Client, addrs Addresses, keyHex string, logger *zap.Logger) (*Caller, error) {
	if client == nil {
		return nil, fmt.Errorf("chain client is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := loadABIs(); err != nil {
		return nil, fmt.Errorf("parse abis: %w", err)
	}

	chainID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}

	c := &Caller{
		client:  client,
		addrs:   addrs,
		chainID: chainID,
		logger:  logger,
	}

	if keyHex != "" {
		key, err := crypto.HexToECDSA(keyHex)
		if err != nil {
			return nil, fmt.Errorf("parse private key: %w", err)
		}
		c.key = key
		c.from = crypto.PubkeyToAddress(key.PublicKey)
	}

	return c, nil
}

// From returns the signing account address.
func (c *Caller) From() common.Address {
	return c.from
}

func (c *Caller) PositionMetadata(ctx context.Context, positionID *big.Int) (model.Position, error) {
	values, err := c.call(ctx, c.addrs.LPToken, parsedABIs.lpToken, "tokenMetadata", positionID)
	if err != nil {
		return model.Position{}, err
	}
	if len(values) != 3 {
		return model.Position{}, fmt.Errorf("tokenMetadata return size %d", len(values))
	}

	token, ok := values[0].(common.Address)
	if !ok {
		return model.Position{}, fmt.Errorf("tokenMetadata token type %T", values[0])
	}
	supplied, ok := values[1].(*big.Int)
	if !ok {
		return model.Position{}, fmt.Errorf("tokenMetadata suppliedLiquidity type %T", values[1])
	}
	shares, ok := values[2].(*big.Int)
	if !ok {
		return model.Position{}, fmt.Errorf("tokenMetadata shares type %T", values[2])
	}

	return model.Position{
		ChainID:           c.chainID.Uint64(),
		PositionID:        new(big.Int).Set(positionID),
		TokenAddress:      token,
		SuppliedLiquidity: supplied,
		Shares:            shares,
	}, nil
}

func (c *Caller) TotalLiquidity(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "totalLiquidity", token)
}

func (c *Caller) TokenAmount(ctx context.Context, shares *big.Int, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "sharesToTokenAmount", shares, token)
}

func (c *Caller) SuppliedLiquidityByToken(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "totalReserve", token)
}

func (c *Caller) BaseDivisor(ctx context.Context) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "BASE_DIVISOR")
}

func (c *Caller) TokenTotalCap(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.WhitelistManager, parsedABIs.whitelist, "perTokenTotalCap", token)
}

func (c *Caller) TokenWalletCap(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.WhitelistManager, parsedABIs.whitelist, "perTokenWalletCap", token)
}

func (c *Caller) TotalLiquidityByLP(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.WhitelistManager, parsedABIs.whitelist, "totalLiquidityByLp", token, owner)
}

func (c *Caller) PendingToken(ctx context.Context, positionID *big.Int) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityFarming, parsedABIs.farming, "pendingToken", positionID)
}

func (c *Caller) RewardRatePerSecond(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityFarming, parsedABIs.farming, "getRewardRatePerSecond", token)
}

func (c *Caller) RewardTokenAddress(ctx context.Context, token common.Address) (common.Address, error) {
	values, err := c.call(ctx, c.addrs.LiquidityFarming, parsedABIs.farming, "rewardTokens", token)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := values[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("rewardTokens unexpected type %T", values[0])
	}
	return addr, nil
}

func (c *Caller) TotalSharesStaked(ctx context.Context, token common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, c.addrs.LiquidityFarming, parsedABIs.farming, "totalSharesStaked", token)
}

func (c *Caller) Allowance(ctx context.Context, owner, token, spender common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, token, parsedABIs.erc20, "allowance", owner, spender)
}

func (c *Caller) BalanceOf(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.callBigInt(ctx, token, parsedABIs.erc20, "balanceOf", owner)
}

func (c *Caller) Approve(ctx context.Context, token, spender common.Address, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, token, parsedABIs.erc20, "approve", nil, spender, value)
}

func (c *Caller) AddLiquidity(ctx context.Context, token common.Address, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "addTokenLiquidity", nil, token, value)
}

func (c *Caller) AddNativeLiquidity(ctx context.Context, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "addNativeLiquidity", value)
}

func (c *Caller) IncreaseLiquidity(ctx context.Context, positionID, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "increaseTokenLiquidity", nil, positionID, value)
}

func (c *Caller) IncreaseNativeLiquidity(ctx context.Context, positionID, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "increaseNativeLiquidity", value, positionID)
}

func (c *Caller) RemoveLiquidity(ctx context.Context, positionID, value *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "removeLiquidity", nil, positionID, value)
}

func (c *Caller) ClaimFee(ctx context.Context, positionID *big.Int) (TxHandle, error) {
	return c.transact(ctx, c.addrs.LiquidityPool, parsedABIs.pool, "claimFee", nil, positionID)
}

func (c *Caller) call(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) ([]interface{}, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	msg := ethereum.CallMsg{To: &contract, Data: data}
	resp, err := c.client.CallContract(ctx, msg, nil)
	if err != nil {
		return nil, fmt.Errorf("call %s: %v: %w", method, err, model.FetchFailed)
	}

	values, err := contractABI.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("%s returned no values", method)
	}
	return values, nil
}

func (c *Caller) callBigInt(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, args ...interface{}) (*big.Int, error) {
	values, err := c.call(ctx, contract, contractABI, method, args...)
	if err != nil {
		return nil, err
	}
	result, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return result, nil
}

func (c *Caller) transact(ctx context.Context, contract common.Address, contractABI abi.ABI, method string, value *big.Int, args ...interface{}) (TxHandle, error) {
	if c.key == nil {
		return nil, fmt.Errorf("no signing key configured")
	}

	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	nonce, err := c.client.PendingNonceAt(ctx, c.from)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}

	msg := ethereum.CallMsg{From: c.from, To: &contract, Value: value, Data: data}
	gasLimit, err := c.client.EstimateGas(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("estimate gas for %s: %w", method, err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &contract,
		Value:    value,
		Gas:      gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(c.chainID), c.key)
	if err != nil {
		return nil, fmt.Errorf("sign %s: %w", method, err)
	}

	if err := c.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send %s: %v: %w", method, err, model.TransactionRejected)
	}

	c.logger.Info("transaction submitted",
		zap.String("method", method),
		zap.String("hash", signed.Hash().Hex()),
		zap.Uint64("nonce", nonce),
	)

	return &ethTxHandle{hash: signed.Hash(), client: c.client}, nil
}

type ethTxHandle struct {
	hash   common.Hash
	client *chain.Client
}

func (h *ethTxHandle) Hash() common.Hash {
	return h.hash
}

func (h *ethTxHandle) WaitForConfirmations(ctx context.Context, n uint64) (*types.Receipt, error) {
	receipt, err := h.client.WaitMined(ctx, h.hash, n)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return receipt, fmt.Errorf("tx %s: %w", h.hash.Hex(), model.TransactionReverted)
	}
	return receipt, nil
}
