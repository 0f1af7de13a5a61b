package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"nft-sniper/internal/config"
	"nft-sniper/internal/monitor"
	"nft-sniper/internal/store"
)

// ErrNoWallets 表示没有任何钱包通过校验，无法开始扫描。
var ErrNoWallets = errors.New("没有可调度的钱包")

// App 聚合核心依赖并驱动系统生命周期。
type App struct {
	cfg    *config.Config
	logger *zap.Logger
	store  *store.Store
}

// New 创建 App 实例。
func New(cfg *config.Config, logger *zap.Logger, store *store.Store) *App {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &App{
		cfg:    cfg,
		logger: logger,
		store:  store,
	}
}

// Run 启动执行队列、监控接口与各钱包扫描，直到达成购买目标或收到退出信号。
// 达成目标视为正常退出，返回 nil。
func (a *App) Run(ctx context.Context) error {
	a.logger.Info("抢购程序已初始化",
		zap.String("environment", a.cfg.App.Environment),
		zap.String("mode", string(a.cfg.Sniper.Mode)),
		zap.String("collection", a.cfg.Marketplace.Collection),
		zap.Int("budget", a.cfg.Sniper.Budget()),
		zap.Int("wallets", len(a.cfg.Wallets)),
	)

	orch, err := newOrchestrator(ctx, a.cfg, a.logger, a.store)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	group, groupCtx := errgroup.WithContext(runCtx)
	sessions := NewSessions(groupCtx, a.logger)
	group.Go(func() error {
		return orch.queue.Run(groupCtx)
	})
	if a.cfg.Monitor.Port > 0 {
		group.Go(func() error {
			return monitor.Serve(groupCtx, orch.monitor, a.cfg.Monitor.Port, a.logger,
				monitor.WithWalletRemover(sessions.Remove))
		})
	}

	if scheduled := a.schedule(groupCtx, orch, sessions); scheduled == 0 {
		cancel()
		_ = group.Wait()
		return ErrNoWallets
	}

	group.Go(func() error {
		defer sessions.CancelAll()
		select {
		case <-orch.tracker.Done():
			bought := orch.tracker.Bought()
			a.logger.Info("已达成购买目标，停止全部扫描",
				zap.String("reason", orch.tracker.Reason()),
				zap.Strings("bought", bought),
			)
			orch.monitor.RecordShutdown(groupCtx, orch.tracker.Reason(), bought)
			cancel()
		case <-groupCtx.Done():
		}
		return nil
	})

	err = group.Wait()
	sessions.Wait()
	if err != nil {
		return fmt.Errorf("系统异常退出: %w", err)
	}

	if orch.tracker.Completed() {
		a.logger.Info("抢购完成", zap.Int("bought", orch.tracker.Count()))
	} else {
		a.logger.Info("系统收到退出信号，正在停止", zap.Int("bought", orch.tracker.Count()))
	}
	return nil
}

// schedule 为每个有效钱包启动扫描，配置无效的钱包记录后跳过。
func (a *App) schedule(ctx context.Context, orch *orchestrator, sessions *Sessions) int {
	scheduled := 0
	for _, wallet := range a.cfg.Wallets {
		if err := wallet.Check(a.cfg.Sniper.PollInterval); err != nil {
			a.logger.Error("钱包配置无效，跳过调度", zap.Error(err))
			orch.monitor.RecordError(ctx, "钱包配置无效", err, map[string]interface{}{"wallet": wallet.Address})
			continue
		}
		if err := sessions.Add(orch.newScanner(wallet)); err != nil {
			a.logger.Error("启动钱包扫描失败", zap.String("wallet", wallet.Address), zap.Error(err))
			continue
		}
		scheduled++
	}
	return scheduled
}
