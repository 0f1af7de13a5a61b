package execution

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"nft-sniper/internal/config"
	"nft-sniper/internal/marketplace"
	"nft-sniper/internal/tracker"
)

// Strategy 抽象购买策略，执行结果通过 Outcome 返回，错误不向上传播。
type Strategy interface {
	Name() string
	Execute(ctx context.Context, task Task) Outcome
}

// Tracker 为策略所需的完成度追踪能力。
type Tracker interface {
	Record(ctx context.Context, purchase tracker.Purchase) bool
	IsBought(id string) bool
	Remaining() int
	Completed() bool
	Complete(reason string)
}

// Options 控制指令构造与资金计算。
type Options struct {
	Marketplace         string // 市场合约地址
	Collection          string // NFT 合约地址
	Denom               string
	FeeRate             decimal.Decimal
	ReconcileBatchFills bool
}

// OptionsFromConfig 从配置构造策略参数。
func OptionsFromConfig(mp config.MarketplaceConfig, sniper config.SniperConfig) Options {
	return Options{
		Marketplace:         mp.Contract,
		Collection:          mp.Collection,
		Denom:               mp.Denom,
		FeeRate:             decimal.NewFromFloat(sniper.FeeRate),
		ReconcileBatchFills: sniper.ReconcileBatchFills,
	}
}

// New 根据模式选择购买策略。
func New(mode config.Mode, opts Options, tr Tracker, logger *zap.Logger) (Strategy, error) {
	if tr == nil {
		return nil, fmt.Errorf("execution: tracker 不能为空")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	switch mode {
	case config.ModeExplicit:
		return NewSingle(opts, tr, logger), nil
	case config.ModeSweep:
		return NewBatch(opts, tr, logger), nil
	case config.ModeAuto:
		return NewSequential(opts, tr, logger), nil
	default:
		return nil, fmt.Errorf("execution: 不支持的模式 %q", mode)
	}
}

type base struct {
	name    string
	opts    Options
	tracker Tracker
	logger  *zap.Logger
}

func newBase(name string, opts Options, tr Tracker, logger *zap.Logger) base {
	if logger == nil {
		logger = zap.NewNop()
	}
	return base{name: name, opts: opts, tracker: tr, logger: logger.Named(name)}
}

func (b *base) Name() string {
	return b.name
}

func (b *base) begin(task Task) Outcome {
	return Outcome{
		TaskID:    task.ID,
		Strategy:  b.name,
		Sender:    task.Sender,
		Submitted: make([]string, 0, len(task.Listings)),
		Bought:    make([]string, 0, len(task.Listings)),
		TxHashes:  make([]string, 0, 1),
		StartedAt: time.Now().UTC(),
	}
}

// finish 必须直接以 defer 调用，负责兜住 panic 并补全结果。
func (b *base) finish(out *Outcome) {
	if r := recover(); r != nil {
		out.Err = fmt.Errorf("execution: 执行过程发生 panic: %v", r)
		b.logger.Error("抢购异常", zap.String("task_id", out.TaskID), zap.Any("panic", r))
	}
	if out.Err != nil {
		out.Error = out.Err.Error()
	}
	out.Duration = time.Since(out.StartedAt)
	out.Completed = b.tracker.Completed()
}

func (b *base) submit(ctx context.Context, task Task, msg any, funds []Coin) (TxResult, error) {
	if task.Client == nil {
		return TxResult{}, &SubmissionError{Err: fmt.Errorf("任务缺少执行客户端")}
	}
	return checkResult(task.Client.Execute(ctx, task.Sender, b.opts.Marketplace, msg, funds))
}

// pending 剔除已购、不可购买及任务内重复的挂单。
func (b *base) pending(listings []marketplace.Listing) []marketplace.Listing {
	seen := make(map[string]struct{}, len(listings))
	out := make([]marketplace.Listing, 0, len(listings))
	for _, l := range listings {
		if _, dup := seen[l.TokenID]; dup {
			continue
		}
		seen[l.TokenID] = struct{}{}
		if b.tracker.IsBought(l.TokenID) || !l.Purchasable() {
			continue
		}
		out = append(out, l)
	}
	return out
}

func (b *base) record(ctx context.Context, task Task, l marketplace.Listing, txHash string, out *Outcome) bool {
	ok := b.tracker.Record(ctx, tracker.Purchase{
		TokenID:  l.TokenID,
		TxHash:   txHash,
		Wallet:   task.Sender,
		Amount:   FeeInclusive(l.Price.Amount, b.opts.FeeRate).String(),
		Denom:    b.opts.Denom,
		Strategy: b.name,
		BoughtAt: time.Now().UTC(),
	})
	if ok {
		out.Bought = append(out.Bought, l.TokenID)
	}
	return ok
}
