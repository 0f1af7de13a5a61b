package marketplace

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"nft-sniper/internal/config"
)

const maxErrorBody = 4 << 10

// Client 负责查询 Pallet 市场挂单，不做重试，失败由下一次轮询兜底。
type Client struct {
	baseURL    string
	denom      string
	pageSize   int
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *zap.Logger

	unknownTypes sync.Map
}

// NewClient 根据配置构造挂单查询客户端。
func NewClient(cfg config.MarketplaceConfig, httpClient *http.Client, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 10 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 25
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		denom:      cfg.Denom,
		pageSize:   pageSize,
		httpClient: httpClient,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// QueryByIdentifier 查询指定 token 的挂单，没有挂单时返回 ErrNotFound。
func (c *Client) QueryByIdentifier(ctx context.Context, contract, tokenID string) (Listing, error) {
	params := url.Values{}
	params.Set("token_id", tokenID)
	params.Set("token_id_exact", "true")

	listings, err := c.fetchTokens(ctx, contract, params)
	if err != nil {
		return Listing{}, err
	}

	for _, listing := range listings {
		if listing.TokenID == tokenID {
			return listing, nil
		}
	}
	return Listing{}, fmt.Errorf("%w: token %s", ErrNotFound, tokenID)
}

// QuerySweep 按价格上限升序拉取一页一口价挂单，无结果时返回空切片。
func (c *Client) QuerySweep(ctx context.Context, contract string, q SweepQuery) ([]Listing, error) {
	page := q.Page
	if page <= 0 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize <= 0 {
		pageSize = c.pageSize
	}

	params := url.Values{}
	params.Set("token_id_exact", "false")
	params.Set("buy_now_only", "true")
	params.Set("timed_auction_only", "false")
	params.Set("not_for_sale", "false")
	if q.MaxPrice.IsPositive() {
		params.Set("max_price", q.MaxPrice.String())
	}
	params.Set("sort_by_price", "asc")
	params.Set("sort_by_id", "asc")
	params.Set("page", strconv.Itoa(page))
	params.Set("page_size", strconv.Itoa(pageSize))

	return c.fetchTokens(ctx, contract, params)
}

func (c *Client) fetchTokens(ctx context.Context, contract string, params url.Values) ([]Listing, error) {
	// ctx 带截止时间时，配额等不到截止前会立即失败
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRateLimited, err)
	}

	u := fmt.Sprintf("%s/api/v2/nfts/%s/tokens?%s", c.baseURL, url.PathEscape(contract), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("marketplace: 构造请求失败: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &SourceUnavailableError{Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &SourceUnavailableError{
			Status:  resp.StatusCode,
			Message: upstreamMessage(resp),
		}
	}

	var payload tokensResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			return []Listing{}, nil
		}
		return nil, &SourceUnavailableError{Status: resp.StatusCode, Message: "解析挂单响应失败", Err: err}
	}

	listings := make([]Listing, 0, len(payload.Tokens))
	for _, token := range payload.Tokens {
		c.noteAuctionType(token)
		listings = append(listings, token.toListing(c.denom))
	}

	c.logger.Debug("挂单查询完成",
		zap.String("contract", contract),
		zap.Int("count", len(listings)),
		zap.Duration("latency", time.Since(start)),
	)

	return listings, nil
}

// noteAuctionType 对每种未识别的 auction.type 只告警一次。
func (c *Client) noteAuctionType(token tokenPayload) {
	if token.Auction == nil {
		return
	}
	if _, known := auctionState(token.Auction.Type); known {
		return
	}
	if _, seen := c.unknownTypes.LoadOrStore(token.Auction.Type, struct{}{}); seen {
		return
	}
	c.logger.Warn("未识别的挂单类型，按拍卖处理",
		zap.String("auction_type", token.Auction.Type),
		zap.String("token_id", token.ID),
	)
}

// upstreamMessage 优先取 JSON 中的 message 字段，其次是原始 JSON，最后是状态描述。
func upstreamMessage(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && len(body) > 0 {
		var payload errorPayload
		if json.Unmarshal(body, &payload) == nil && payload.Message != "" {
			return payload.Message
		}
		if json.Valid(body) {
			return strings.TrimSpace(string(body))
		}
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return resp.Status
}
