package execution

import (
	"context"

	"go.uber.org/zap"

	"nft-sniper/internal/marketplace"
)

// Sequential 逐个挂单提交并等待结果，达到上限后立即停止。
type Sequential struct {
	base
}

// NewSequential 创建逐个购买策略。
func NewSequential(opts Options, tr Tracker, logger *zap.Logger) *Sequential {
	return &Sequential{base: newBase("sequential", opts, tr, logger)}
}

// Execute 依次购买任务中的挂单，单个失败不影响后续挂单。
func (s *Sequential) Execute(ctx context.Context, task Task) (out Outcome) {
	out = s.begin(task)
	defer s.finish(&out)

	for _, listing := range s.pending(task.Listings) {
		if ctx.Err() != nil || s.tracker.Completed() {
			break
		}
		s.buyOne(ctx, task, listing, &out)
	}
	return out
}

func (s *Sequential) buyOne(ctx context.Context, task Task, listing marketplace.Listing, out *Outcome) {
	logger := s.logger.With(zap.String("wallet", task.Sender), zap.String("token_id", listing.TokenID))

	msg, err := NewBuyNowMsg(listing, s.opts.Collection, s.opts.Denom)
	if err != nil {
		out.Err = err
		logger.Warn("抢购失败", zap.Error(err))
		return
	}
	funds, err := Funds([]marketplace.Listing{listing}, s.opts.FeeRate, s.opts.Denom)
	if err != nil {
		out.Err = err
		logger.Warn("抢购失败", zap.Error(err))
		return
	}

	out.Submitted = append(out.Submitted, listing.TokenID)
	out.Funds = append(out.Funds, funds...)

	res, err := s.submit(ctx, task, msg, funds)
	if err != nil {
		out.Err = err
		logger.Warn("抢购失败", zap.Error(err))
		return
	}

	out.TxHashes = append(out.TxHashes, res.TxHash)
	s.record(ctx, task, listing, res.TxHash, out)
	logger.Info("抢购成功", zap.String("tx_hash", res.TxHash))
}
