package marketplace

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrNotFound 表示指定 token 当前没有挂单。
var ErrNotFound = errors.New("marketplace: listing not found")

// ErrRateLimited 表示在 ctx 截止前拿不到查询配额，本次查询被放弃。
var ErrRateLimited = errors.New("marketplace: rate limited")

// SourceUnavailableError 表示挂单查询失败，携带上游状态码与可读信息。
type SourceUnavailableError struct {
	Status  int
	Message string
	Err     error
}

func (e *SourceUnavailableError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("marketplace: 挂单查询失败: %s", e.Message)
	}
	return fmt.Sprintf("marketplace: 挂单查询失败 (%d %s): %s", e.Status, http.StatusText(e.Status), e.Message)
}

func (e *SourceUnavailableError) Unwrap() error {
	return e.Err
}

// IsSourceUnavailable 判断错误是否为挂单源不可用。
func IsSourceUnavailable(err error) bool {
	var target *SourceUnavailableError
	return errors.As(err, &target)
}
