package app

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"nft-sniper/internal/config"
	"nft-sniper/internal/execution"
	"nft-sniper/internal/log"
	"nft-sniper/internal/marketplace"
	"nft-sniper/internal/monitor"
	"nft-sniper/internal/queue"
	"nft-sniper/internal/scanner"
	"nft-sniper/internal/store"
	"nft-sniper/internal/tracker"
)

// orchestrator 持有整条抢购流水线：挂单源、完成度追踪、购买策略、执行队列与监控。
type orchestrator struct {
	cfg      *config.Config
	source   scanner.ListingSource
	client   execution.Client
	tracker  *tracker.Tracker
	strategy execution.Strategy
	queue    *queue.Queue
	monitor  *monitor.Service
	logger   *zap.Logger
}

func newOrchestrator(ctx context.Context, cfg *config.Config, logger *zap.Logger, st *store.Store) (*orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	monitorSvc, err := monitor.NewService(ctx, st, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化监控服务失败: %w", err)
	}

	ledger, err := tracker.NewSQLiteLedger(ctx, st, cfg.Marketplace.Collection, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化购买台账失败: %w", err)
	}

	var targets []string
	if cfg.Sniper.Mode == config.ModeExplicit {
		targets = cfg.Sniper.TokenIDs
	}
	tr := tracker.New(targets, cfg.Sniper.Budget(), ledger, logger)
	if cfg.Sniper.ResumeBought {
		if err := tr.Resume(ctx); err != nil {
			return nil, fmt.Errorf("恢复已购记录失败: %w", err)
		}
	}

	strategy, err := execution.New(cfg.Sniper.Mode, execution.OptionsFromConfig(cfg.Marketplace, cfg.Sniper), tr, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化购买策略失败: %w", err)
	}

	client, err := newExecutionClient(cfg.Execution, logger)
	if err != nil {
		return nil, fmt.Errorf("初始化交易客户端失败: %w", err)
	}

	o := &orchestrator{
		cfg:      cfg,
		source:   marketplace.NewClient(cfg.Marketplace, nil, logger),
		client:   client,
		tracker:  tr,
		strategy: strategy,
		monitor:  monitorSvc,
		logger:   logger,
	}
	o.queue = queue.New(strategy, tr, logger, queue.WithOutcomeHook(o.onOutcome))
	return o, nil
}

func newExecutionClient(cfg config.ExecutionConfig, logger *zap.Logger) (execution.Client, error) {
	switch strings.ToLower(cfg.Client) {
	case "relay":
		if cfg.RelayURL == "" {
			return nil, fmt.Errorf("relay 模式需要 execution.relay_url")
		}
		return execution.NewRelayClient(cfg.RelayURL, cfg.Memo, cfg.Timeout, logger), nil
	case "simulated":
		logger.Info("交易客户端处于模拟模式", zap.Float64("failure_rate", cfg.SimulatedFailureRate))
		return execution.NewSimulatedClient(cfg.SimulatedFailureRate, logger), nil
	default:
		return nil, fmt.Errorf("未知的交易客户端 %q", cfg.Client)
	}
}

func (o *orchestrator) newScanner(wallet config.WalletConfig) *scanner.Scanner {
	settings := scanner.SettingsFromConfig(o.cfg.Marketplace, o.cfg.Sniper, wallet)
	return scanner.New(wallet.Address, o.client, o.source, o.queue, o.tracker, settings,
		log.ForWallet(o.logger, wallet.Address),
		scanner.WithObserver(o.monitor),
	)
}

func (o *orchestrator) onOutcome(ctx context.Context, outcome execution.Outcome) {
	fields := []zap.Field{
		zap.String("task_id", outcome.TaskID),
		zap.String("strategy", outcome.Strategy),
		zap.String("wallet", outcome.Sender),
		zap.Strings("bought", outcome.Bought),
		zap.Int("total_bought", o.tracker.Count()),
		zap.Duration("duration", outcome.Duration),
	}
	switch {
	case outcome.Err != nil:
		o.logger.Warn("任务执行失败", append(fields, zap.Error(outcome.Err))...)
	case outcome.Succeeded():
		o.logger.Info("任务执行完成", fields...)
	default:
		o.logger.Debug("任务无需提交", fields...)
	}
	o.monitor.RecordOutcome(ctx, outcome)
}
