// Package scanner 按固定周期为单个钱包轮询挂单，过滤后将任务送入执行队列。
package scanner

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nft-sniper/internal/config"
	"nft-sniper/internal/execution"
	"nft-sniper/internal/filter"
	"nft-sniper/internal/marketplace"
)

// ListingSource 查询挂单。
type ListingSource interface {
	QueryByIdentifier(ctx context.Context, contract, tokenID string) (marketplace.Listing, error)
	QuerySweep(ctx context.Context, contract string, q marketplace.SweepQuery) ([]marketplace.Listing, error)
}

// Enqueuer 接收待执行任务。
type Enqueuer interface {
	Enqueue(task execution.Task)
}

// BoughtSet 判断 token 是否已购买。
type BoughtSet interface {
	IsBought(tokenID string) bool
}

// Observer 接收轮询结果与挂单源错误，可为空。
type Observer interface {
	PollCompleted(ctx context.Context, report Report)
	SourceFailed(ctx context.Context, wallet string, err error)
}

// State 为扫描器状态。
type State int32

const (
	StateIdle State = iota
	StatePolling
)

func (s State) String() string {
	if s == StatePolling {
		return "polling"
	}
	return "idle"
}

// Settings 为扫描参数，启动后不再变化。
type Settings struct {
	Mode       config.Mode
	Collection string
	TokenIDs   []string
	Traits     []marketplace.Trait
	PriceLimit decimal.Decimal
	PageSize   int
	Interval   time.Duration
}

// SettingsFromConfig 由配置生成指定钱包的扫描参数。
func SettingsFromConfig(mp config.MarketplaceConfig, sn config.SniperConfig, wallet config.WalletConfig) Settings {
	traits := make([]marketplace.Trait, 0, len(sn.DesiredTraits))
	for _, t := range sn.DesiredTraits {
		traits = append(traits, marketplace.Trait{Type: t.Type, Value: t.Value})
	}
	return Settings{
		Mode:       sn.Mode,
		Collection: mp.Collection,
		TokenIDs:   sn.TokenIDs,
		Traits:     traits,
		PriceLimit: decimal.NewFromFloat(sn.PriceLimit),
		PageSize:   mp.PageSize,
		Interval:   wallet.Interval(sn.PollInterval),
	}
}

// Report 汇总一次轮询。
type Report struct {
	Wallet    string        `json:"wallet"`
	Mode      config.Mode   `json:"mode"`
	Fetched   int           `json:"fetched"`
	Matched   int           `json:"matched"`
	Enqueued  int           `json:"enqueued"`
	Errors    int           `json:"errors"`
	Throttled bool          `json:"throttled"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// Option 调整扫描器。
type Option func(*Scanner)

// WithObserver 设置轮询观察者。
func WithObserver(o Observer) Option {
	return func(s *Scanner) {
		s.observer = o
	}
}

// Scanner 为单个钱包的轮询循环。每次触发相互独立，慢轮询不会推迟下一次触发；
// 单次轮询最长存活一个周期，超时或限流时放弃本轮。
type Scanner struct {
	wallet   string
	client   execution.Client
	source   ListingSource
	queue    Enqueuer
	bought   BoughtSet
	settings Settings
	observer Observer
	logger   *zap.Logger

	active atomic.Int32
	polls  atomic.Int64
}

// New 创建钱包扫描器。
func New(wallet string, client execution.Client, source ListingSource, queue Enqueuer, bought BoughtSet, settings Settings, logger *zap.Logger, opts ...Option) *Scanner {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scanner{
		wallet:   wallet,
		client:   client,
		source:   source,
		queue:    queue,
		bought:   bought,
		settings: settings,
		logger:   logger.Named("scanner"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Wallet 返回扫描器所属钱包地址。
func (s *Scanner) Wallet() string {
	return s.wallet
}

// State 返回当前状态，存在进行中的轮询时为 Polling。
func (s *Scanner) State() State {
	if s.active.Load() > 0 {
		return StatePolling
	}
	return StateIdle
}

// Run 以 Idle 状态启动，按周期触发轮询，直到 ctx 结束；返回前等待进行中的轮询退出。
func (s *Scanner) Run(ctx context.Context) error {
	if s.settings.Interval <= 0 {
		return &config.ConfigurationError{Wallet: s.wallet, Reason: "轮询周期必须大于0"}
	}

	ticker := time.NewTicker(s.settings.Interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	s.logger.Info("钱包扫描已启动",
		zap.String("wallet", s.wallet),
		zap.String("mode", string(s.settings.Mode)),
		zap.Duration("interval", s.settings.Interval),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("钱包扫描已停止", zap.String("wallet", s.wallet), zap.Int64("polls", s.polls.Load()))
			return nil
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				pollCtx, cancel := context.WithTimeout(ctx, s.settings.Interval)
				defer cancel()
				s.Poll(pollCtx)
			}()
		}
	}
}

// Poll 执行一次完整的查询、过滤与入队。
func (s *Scanner) Poll(ctx context.Context) Report {
	s.active.Add(1)
	defer s.active.Add(-1)

	report := Report{Wallet: s.wallet, Mode: s.settings.Mode, StartedAt: time.Now().UTC()}
	if s.settings.Mode == config.ModeExplicit {
		s.pollIdentifiers(ctx, &report)
	} else {
		s.pollSweep(ctx, &report)
	}
	report.Duration = time.Since(report.StartedAt)
	s.polls.Add(1)

	s.logger.Debug("轮询完成",
		zap.String("wallet", s.wallet),
		zap.Int("fetched", report.Fetched),
		zap.Int("matched", report.Matched),
		zap.Int("enqueued", report.Enqueued),
		zap.Int("errors", report.Errors),
		zap.Bool("throttled", report.Throttled),
		zap.Duration("duration", report.Duration),
	)
	if s.observer != nil {
		s.observer.PollCompleted(ctx, report)
	}
	return report
}

func (s *Scanner) pollIdentifiers(ctx context.Context, report *Report) {
	for _, id := range s.settings.TokenIDs {
		if ctx.Err() != nil {
			return
		}
		if s.isBought(id) {
			continue
		}

		listing, err := s.source.QueryByIdentifier(ctx, s.settings.Collection, id)
		if errors.Is(err, marketplace.ErrNotFound) {
			continue
		}
		if s.skipped(ctx, err, report) {
			return
		}
		if err != nil {
			report.Errors++
			s.sourceFailed(ctx, err, zap.String("token_id", id))
			continue
		}
		report.Fetched++

		matches := filter.ByIdentifiers([]marketplace.Listing{listing}, s.settings.TokenIDs, s.isBought)
		matches = filter.UnderPrice(matches, s.settings.PriceLimit)
		for _, match := range matches {
			report.Matched++
			s.enqueue(report, match)
		}
	}
}

func (s *Scanner) pollSweep(ctx context.Context, report *Report) {
	listings, err := s.source.QuerySweep(ctx, s.settings.Collection, marketplace.SweepQuery{
		MaxPrice: s.settings.PriceLimit,
		Page:     1,
		PageSize: s.settings.PageSize,
	})
	if s.skipped(ctx, err, report) {
		return
	}
	if err != nil {
		report.Errors++
		s.sourceFailed(ctx, err)
		return
	}
	report.Fetched = len(listings)

	matches := filter.Purchasable(listings)
	matches = filter.UnderPrice(matches, s.settings.PriceLimit)
	matches = filter.ByTraits(matches, s.settings.Traits)
	matches = filter.ExcludeBought(matches, s.isBought)
	report.Matched = len(matches)
	if len(matches) == 0 {
		return
	}
	s.enqueue(report, matches...)
}

func (s *Scanner) enqueue(report *Report, listings ...marketplace.Listing) {
	task := execution.NewTask(s.wallet, s.client, listings...)
	s.queue.Enqueue(task)
	report.Enqueued++

	s.logger.Info("发现可购买挂单",
		zap.String("wallet", s.wallet),
		zap.String("task_id", task.ID),
		zap.Strings("token_ids", task.TokenIDs()),
	)
}

// skipped 判断本轮是否因限流或超出周期而放弃，放弃的轮询不计为挂单源错误。
func (s *Scanner) skipped(ctx context.Context, err error, report *Report) bool {
	if err == nil {
		return false
	}
	if !errors.Is(err, marketplace.ErrRateLimited) && ctx.Err() == nil {
		return false
	}
	report.Throttled = true
	s.logger.Debug("本轮轮询被放弃", zap.String("wallet", s.wallet), zap.Error(err))
	return true
}

func (s *Scanner) sourceFailed(ctx context.Context, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("wallet", s.wallet), zap.Error(err))
	s.logger.Warn("挂单查询失败，等待下次轮询", fields...)
	if s.observer != nil {
		s.observer.SourceFailed(ctx, s.wallet, err)
	}
}

func (s *Scanner) isBought(id string) bool {
	return s.bought != nil && s.bought.IsBought(id)
}
