package execution

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Single 一个挂单对应一笔交易，失败即放弃，等待下一轮轮询重新发现。
type Single struct {
	base
}

// NewSingle 创建单品购买策略。
func NewSingle(opts Options, tr Tracker, logger *zap.Logger) *Single {
	return &Single{base: newBase("single", opts, tr, logger)}
}

// Execute 购买任务中的第一个挂单。
func (s *Single) Execute(ctx context.Context, task Task) (out Outcome) {
	out = s.begin(task)
	defer s.finish(&out)

	if len(task.Listings) == 0 {
		out.Err = errors.New("execution: 任务不包含挂单")
		return out
	}
	if len(task.Listings) > 1 {
		s.logger.Warn("单品策略只处理首个挂单", zap.String("task_id", task.ID), zap.Int("listings", len(task.Listings)))
	}

	listing := task.Listings[0]
	if s.tracker.IsBought(listing.TokenID) {
		s.logger.Debug("token 已购买，跳过", zap.String("token_id", listing.TokenID))
		return out
	}
	if !listing.Purchasable() {
		s.logger.Debug("挂单已不可购买，跳过", zap.String("token_id", listing.TokenID))
		return out
	}

	msg, err := NewBuyNowMsg(listing, s.opts.Collection, s.opts.Denom)
	if err != nil {
		out.Err = err
		s.logger.Warn("抢购失败", zap.String("token_id", listing.TokenID), zap.Error(err))
		return out
	}
	funds, err := Funds(task.Listings[:1], s.opts.FeeRate, s.opts.Denom)
	if err != nil {
		out.Err = err
		s.logger.Warn("抢购失败", zap.String("token_id", listing.TokenID), zap.Error(err))
		return out
	}

	out.Submitted = append(out.Submitted, listing.TokenID)
	out.Funds = funds

	res, err := s.submit(ctx, task, msg, funds)
	if err != nil {
		out.Err = err
		s.logger.Warn("抢购失败",
			zap.String("wallet", task.Sender),
			zap.String("token_id", listing.TokenID),
			zap.Error(err),
		)
		return out
	}

	out.TxHashes = append(out.TxHashes, res.TxHash)
	s.record(ctx, task, listing, res.TxHash, &out)
	s.logger.Info("抢购成功",
		zap.String("wallet", task.Sender),
		zap.String("token_id", listing.TokenID),
		zap.String("tx_hash", res.TxHash),
		zap.String("funds", funds[0].Amount+funds[0].Denom),
	)
	return out
}
