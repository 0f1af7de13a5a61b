package execution

import (
	"context"
	"errors"
	"fmt"
)

// Client 负责签名并广播合约调用，密钥管理由实现方负责。
type Client interface {
	Execute(ctx context.Context, sender, contract string, msg any, funds []Coin) (TxResult, error)
}

// SubmissionError 表示交易被拒绝或未返回交易哈希。
type SubmissionError struct {
	Code   uint32
	RawLog string
	Err    error
}

func (e *SubmissionError) Error() string {
	switch {
	case e.Err != nil:
		return fmt.Sprintf("execution: 交易提交失败: %v", e.Err)
	case e.Code != 0:
		return fmt.Sprintf("execution: 交易被拒绝 code=%d: %s", e.Code, e.RawLog)
	default:
		return "execution: 交易未返回哈希"
	}
}

func (e *SubmissionError) Unwrap() error {
	return e.Err
}

// IsSubmissionFailure 判断错误是否为交易提交失败。
func IsSubmissionFailure(err error) bool {
	var target *SubmissionError
	return errors.As(err, &target)
}

// checkResult 将客户端返回值统一为成功或 SubmissionError。
func checkResult(res TxResult, err error) (TxResult, error) {
	if err != nil {
		return res, &SubmissionError{Err: err}
	}
	if res.Code != 0 || res.TxHash == "" {
		return res, &SubmissionError{Code: res.Code, RawLog: res.RawLog}
	}
	return res, nil
}
