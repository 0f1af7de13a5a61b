package execution

import (
	"context"
	"errors"

	"go.uber.org/zap"
)

// Batch 将多个挂单合并为一笔 batch_bids 交易。
type Batch struct {
	base
}

// NewBatch 创建批量购买策略。
func NewBatch(opts Options, tr Tracker, logger *zap.Logger) *Batch {
	return &Batch{base: newBase("batch", opts, tr, logger)}
}

// Execute 按剩余额度截取挂单后一次性提交。
// 默认成功即视为全部完成；开启 ReconcileBatchFills 时改由已购数量判断。
func (b *Batch) Execute(ctx context.Context, task Task) (out Outcome) {
	out = b.begin(task)
	defer b.finish(&out)

	listings := b.pending(task.Listings)
	if limit := b.tracker.Remaining(); limit > 0 && len(listings) > limit {
		listings = listings[:limit]
	}
	if len(listings) == 0 {
		if len(task.Listings) == 0 {
			out.Err = errors.New("execution: 任务不包含挂单")
		}
		return out
	}

	msg, err := NewBatchBidsMsg(listings, b.opts.Collection, b.opts.Denom)
	if err != nil {
		out.Err = err
		b.logger.Warn("批量抢购失败", zap.Error(err))
		return out
	}
	funds, err := Funds(listings, b.opts.FeeRate, b.opts.Denom)
	if err != nil {
		out.Err = err
		b.logger.Warn("批量抢购失败", zap.Error(err))
		return out
	}

	for _, l := range listings {
		out.Submitted = append(out.Submitted, l.TokenID)
	}
	out.Funds = funds

	res, err := b.submit(ctx, task, msg, funds)
	if err != nil {
		out.Err = err
		b.logger.Warn("批量抢购失败",
			zap.String("wallet", task.Sender),
			zap.Strings("token_ids", out.Submitted),
			zap.Error(err),
		)
		return out
	}

	out.TxHashes = append(out.TxHashes, res.TxHash)
	for _, l := range listings {
		b.record(ctx, task, l, res.TxHash, &out)
	}
	b.logger.Info("批量抢购成功",
		zap.String("wallet", task.Sender),
		zap.Strings("token_ids", out.Submitted),
		zap.String("tx_hash", res.TxHash),
		zap.String("funds", funds[0].Amount+funds[0].Denom),
	)

	if !b.opts.ReconcileBatchFills {
		b.tracker.Complete("批量购买交易成功")
	}
	return out
}
