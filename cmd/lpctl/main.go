package main

import (
	"context"
	"fmt"
	"math/big"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"liquidityHub/internal/approval"
	"liquidityHub/internal/chain"
	"liquidityHub/internal/config"
	"liquidityHub/internal/contracts"
	"liquidityHub/internal/engine"
	"liquidityHub/internal/model"
	"liquidityHub/internal/notify"
	"liquidityHub/internal/pricefeed"
	"liquidityHub/internal/storage"
	"liquidityHub/internal/storage/postgres"
	"liquidityHub/internal/wallet"
)

func main() {
	root := &cobra.Command{
		Use:          "lpctl",
		Short:        "Liquidity pool position manager",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	addCmd := &cobra.Command{
		Use:   "add",
		Short: "Open a new liquidity position",
		RunE:  runAdd,
	}
	addRuntimeFlags(addCmd)
	addAmountFlags(addCmd)
	addCmd.Flags().String("token", "", "token symbol")
	addCmd.Flags().Bool("infinite-approval", false, "approve the maximum amount instead of the entered amount")
	root.AddCommand(addCmd)

	increaseCmd := &cobra.Command{
		Use:   "increase",
		Short: "Add funds to an existing position",
		RunE:  runIncrease,
	}
	addRuntimeFlags(increaseCmd)
	addAmountFlags(increaseCmd)
	increaseCmd.Flags().String("position", "", "position id")
	increaseCmd.Flags().Bool("infinite-approval", false, "approve the maximum amount instead of the entered amount")
	root.AddCommand(increaseCmd)

	removeCmd := &cobra.Command{
		Use:   "remove",
		Short: "Withdraw funds from a position",
		RunE:  runRemove,
	}
	addRuntimeFlags(removeCmd)
	addAmountFlags(removeCmd)
	removeCmd.Flags().String("position", "", "position id")
	root.AddCommand(removeCmd)

	claimCmd := &cobra.Command{
		Use:   "claim",
		Short: "Claim a position's accrued fees",
		RunE:  runClaim,
	}
	addRuntimeFlags(claimCmd)
	claimCmd.Flags().String("position", "", "position id")
	root.AddCommand(claimCmd)

	positionCmd := &cobra.Command{
		Use:   "position",
		Short: "Show a position's metrics",
		RunE:  runPosition,
	}
	addRuntimeFlags(positionCmd)
	positionCmd.Flags().String("position", "", "position id")
	root.AddCommand(positionCmd)

	tokensCmd := &cobra.Command{
		Use:   "tokens",
		Short: "List supported tokens on the active chain",
		RunE:  runTokens,
	}
	addRuntimeFlags(tokensCmd)
	root.AddCommand(tokensCmd)

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent transactions on the active chain",
		RunE:  runHistory,
	}
	addRuntimeFlags(historyCmd)
	historyCmd.Flags().Int("limit", 20, "maximum entries to show")
	root.AddCommand(historyCmd)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("rpc", "", "chain RPC URL")
	cmd.Flags().Uint64("chain-id", 0, "active chain id")
	cmd.Flags().String("key", "", "hex-encoded signing key")
	cmd.Flags().String("key-file", "", "file holding the hex-encoded signing key")
	cmd.Flags().String("registry", "./registry.json", "chain/token registry path")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for transaction history")
	cmd.Flags().String("history", "./data/tx_history.jsonl", "JSONL history path when no DSN is set")
	cmd.Flags().String("price-feed-url", "", "price feed base URL")
	cmd.Flags().Uint64("confirmations", 1, "confirmations to wait for")
	cmd.Flags().Int("max-retries", 5, "maximum retry attempts")
	cmd.Flags().Duration("retry-backoff", 500*time.Millisecond, "initial retry backoff")
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func addAmountFlags(cmd *cobra.Command) {
	cmd.Flags().String("amount", "", "amount as free text, up to three decimals")
	cmd.Flags().Int("percent", 0, "slider step (25, 50, 75, 100)")
	cmd.Flags().Bool("max", false, "use the full available amount")
}

type app struct {
	cfg      config.Config
	registry *config.Registry
	engine   *engine.Engine
	logger   *zap.Logger
	close    func()
}

func setup(cmd *cobra.Command) (*app, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	if cfg.ChainID == 0 {
		return nil, fmt.Errorf("chain id is required")
	}

	registry, err := config.LoadRegistry(cfg.Registry)
	if err != nil {
		return nil, err
	}
	chainCfg, ok := registry.Chain(cfg.ChainID)
	if !ok {
		return nil, fmt.Errorf("chain %d not in registry", cfg.ChainID)
	}

	keyHex := cfg.PrivateKey
	if keyHex == "" && cfg.KeyFile != "" {
		raw, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read key file: %w", err)
		}
		keyHex = strings.TrimSpace(string(raw))
	}
	if keyHex == "" {
		return nil, fmt.Errorf("signing key is required")
	}
	keyHex = strings.TrimPrefix(keyHex, "0x")

	w, err := wallet.NewKeyWallet(keyHex, registryChains(registry, cfg.ChainID), logger)
	if err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if err := w.Connect(ctx); err != nil {
		return nil, err
	}
	if err := w.SwitchChain(ctx, cfg.ChainID); err != nil {
		return nil, err
	}
	account, _ := w.Account()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	closers := []func(){func() { client.Close() }, func() { logger.Sync() }}

	liveChainID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("get chain id: %w", err)
	}
	if liveChainID.Uint64() != cfg.ChainID {
		return nil, fmt.Errorf("rpc serves chain %s, configured chain is %d", liveChainID, cfg.ChainID)
	}

	caller, err := contracts.NewCaller(ctx, client, chainCfg.Contracts, keyHex, logger)
	if err != nil {
		return nil, err
	}

	var history storage.History
	if cfg.PostgresDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open history store: %w", err)
		}
		closers = append(closers, store.Close)
		history = store
	} else {
		history = storage.NewJsonlHistory(cfg.HistoryPath)
	}

	var feed pricefeed.PriceFeed
	if cfg.PriceFeedURL != "" {
		feed, err = pricefeed.NewHTTPFeed(cfg.PriceFeedURL, cfg.MaxRetries, cfg.RetryBackoff, logger)
		if err != nil {
			return nil, err
		}
	}

	eng, err := engine.New(engine.Options{
		Owner:         account,
		Chain:         chainCfg,
		Registry:      registry,
		Reader:        caller,
		Signer:        caller,
		NativeBalance: client.BalanceAt,
		Feed:          feed,
		History:       history,
		Sink:          notify.NewLogSink(logger),
		Confirmations: cfg.Confirmations,
		Logger:        logger,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("session start",
		zap.String("account", account.Hex()),
		zap.Uint64("chain_id", cfg.ChainID),
		zap.String("rpc", cfg.RPCURL),
	)

	return &app{
		cfg:      cfg,
		registry: registry,
		engine:   eng,
		logger:   logger,
		close: func() {
			for i := len(closers) - 1; i >= 0; i-- {
				closers[i]()
			}
		},
	}, nil
}

func registryChains(r *config.Registry, chainID uint64) []model.ChainDescriptor {
	c, _ := r.Chain(chainID)
	return []model.ChainDescriptor{c.ChainDescriptor}
}

func applyAmount(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) error {
	amountText, _ := cmd.Flags().GetString("amount")
	percent, _ := cmd.Flags().GetInt("percent")
	max, _ := cmd.Flags().GetBool("max")

	switch {
	case max:
		return eng.SetMax(ctx)
	case percent > 0:
		return eng.SetAmountPercent(ctx, percent)
	case amountText != "":
		return eng.SetAmountText(ctx, amountText)
	default:
		return fmt.Errorf("one of --amount, --percent or --max is required")
	}
}

func ensureApproved(ctx context.Context, cmd *cobra.Command, eng *engine.Engine) error {
	infinite, _ := cmd.Flags().GetBool("infinite-approval")
	if eng.ApprovalState() == approval.StateInsufficient || infinite {
		if err := eng.Approve(ctx, infinite); err != nil {
			return err
		}
	}
	return nil
}

func runAdd(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	symbol, _ := cmd.Flags().GetString("token")
	token, ok := app.registry.Token(symbol)
	if !ok {
		return fmt.Errorf("unknown token %q", symbol)
	}
	if err := app.engine.SelectToken(token); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := applyAmount(ctx, cmd, app.engine); err != nil {
		return err
	}
	if err := ensureApproved(ctx, cmd, app.engine); err != nil {
		return err
	}

	share, err := app.engine.DepositPoolShare(ctx)
	if err == nil {
		fmt.Printf("projected pool share: %s%%\n", share)
	}

	return app.engine.AddLiquidity(ctx)
}

func runIncrease(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := selectPosition(ctx, cmd, app); err != nil {
		return err
	}
	app.engine.SetFlow(engine.FlowDeposit)
	if err := applyAmount(ctx, cmd, app.engine); err != nil {
		return err
	}
	if err := ensureApproved(ctx, cmd, app.engine); err != nil {
		return err
	}
	return app.engine.IncreaseLiquidity(ctx)
}

func runRemove(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := selectPosition(ctx, cmd, app); err != nil {
		return err
	}
	if err := applyAmount(ctx, cmd, app.engine); err != nil {
		return err
	}
	return app.engine.RemoveLiquidity(ctx)
}

func runClaim(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := selectPosition(ctx, cmd, app); err != nil {
		return err
	}
	return app.engine.ClaimFee(ctx)
}

func runPosition(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := selectPosition(ctx, cmd, app); err != nil {
		return err
	}
	o, err := app.engine.Overview(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("position %s (%s)\n", o.Position.PositionID, o.TokenSymbol)
	fmt.Printf("  supplied liquidity: %s\n", o.Supplied)
	fmt.Printf("  redeemable:         %s\n", o.Redeemable)
	fmt.Printf("  unclaimed fees:     %s\n", o.UnclaimedFees)
	fmt.Printf("  pool share:         %s%%\n", o.PoolShare)
	if o.PriceKnown {
		fmt.Printf("  token price:        $%.4f\n", o.PriceUSD)
	}
	if o.RewardAPYKnown {
		fmt.Printf("  reward APY:         %.2f%%\n", o.RewardAPY)
	}
	if o.RewardRateKnown {
		fmt.Printf("  your reward rate:   %s %s/day\n", o.YourRewardRate, o.RewardTokenSymbol)
	}
	if o.PendingRewardKnown {
		fmt.Printf("  pending reward:     %s %s\n", o.PendingReward, o.RewardTokenSymbol)
	}
	return nil
}

func runTokens(cmd *cobra.Command, _ []string) error {
	app, err := setup(cmd)
	if err != nil {
		return err
	}
	defer app.close()

	for _, token := range app.registry.Tokens() {
		cfg, ok := token.OnChain(app.cfg.ChainID)
		if !ok {
			continue
		}
		fmt.Printf("%-8s %s (decimals %d)\n", token.Symbol, cfg.Address.Hex(), cfg.Decimals)
	}
	return nil
}

func runHistory(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}
	if cfg.ChainID == 0 {
		return fmt.Errorf("chain id is required")
	}
	if cfg.PostgresDSN == "" {
		return fmt.Errorf("history queries need --pg-dsn")
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := postgres.NewStore(ctx, cfg.PostgresDSN)
	if err != nil {
		return fmt.Errorf("open history store: %w", err)
	}
	defer store.Close()

	limit, _ := cmd.Flags().GetInt("limit")
	entries, err := store.Recent(ctx, cfg.ChainID, limit)
	if err != nil {
		return err
	}
	for _, tx := range entries {
		fmt.Printf("%-10s %-26s %s\n", tx.Status, tx.Label, tx.Hash.Hex())
	}
	return nil
}

func selectPosition(ctx context.Context, cmd *cobra.Command, app *app) error {
	idText, _ := cmd.Flags().GetString("position")
	id, ok := new(big.Int).SetString(idText, 10)
	if !ok {
		return fmt.Errorf("position id %q is not a number", idText)
	}
	return app.engine.SelectPosition(ctx, id)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
