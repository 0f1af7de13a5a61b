package marketplace

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// AvailabilityState 表示挂单的可购买状态。
type AvailabilityState string

const (
	StateBuyNow     AvailabilityState = "buy_now"
	StateAuction    AvailabilityState = "auction"
	StateNotForSale AvailabilityState = "not_for_sale"
)

// Trait 为 NFT 的单个特征。
type Trait struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Price 为挂单价格，Amount 以最小单位计。
type Price struct {
	Amount decimal.Decimal
	Denom  string
}

// Listing 表示一次查询得到的挂单，获取后不可变。
type Listing struct {
	TokenID string
	Price   Price
	Traits  []Trait
	State   AvailabilityState
	Owner   string
}

// Purchasable 判断挂单当前是否可以一口价购买。
func (l Listing) Purchasable() bool {
	return l.State == StateBuyNow && l.TokenID != "" && l.Price.Amount.IsPositive()
}

// SweepQuery 控制按价格扫货的查询参数。
type SweepQuery struct {
	MaxPrice decimal.Decimal
	Page     int
	PageSize int
}

// tokensResponse 对应 /api/v2/nfts/{contract}/tokens 的响应。
type tokensResponse struct {
	Tokens []tokenPayload `json:"tokens"`
}

type tokenPayload struct {
	ID      string          `json:"id"`
	IDInt   *int64          `json:"id_int"`
	Owner   string          `json:"owner"`
	Traits  []Trait         `json:"traits"`
	Token   *nestedToken    `json:"token"`
	Auction *auctionPayload `json:"auction"`
}

type nestedToken struct {
	Traits []Trait `json:"traits"`
}

type auctionPayload struct {
	Type  string        `json:"type"`
	Price []coinPayload `json:"price"`
}

type coinPayload struct {
	Amount string `json:"amount"`
	Denom  string `json:"denom"`
}

type errorPayload struct {
	Message string `json:"message"`
}

func (p tokenPayload) toListing(defaultDenom string) Listing {
	listing := Listing{
		TokenID: strings.TrimSpace(p.ID),
		Owner:   p.Owner,
		State:   StateNotForSale,
		Price:   Price{Amount: decimal.Zero, Denom: defaultDenom},
	}
	if listing.TokenID == "" && p.IDInt != nil {
		listing.TokenID = strconv.FormatInt(*p.IDInt, 10)
	}

	switch {
	case len(p.Traits) > 0:
		listing.Traits = p.Traits
	case p.Token != nil:
		listing.Traits = p.Token.Traits
	}
	if listing.Traits == nil {
		listing.Traits = []Trait{}
	}

	if p.Auction == nil {
		return listing
	}

	listing.State, _ = auctionState(p.Auction.Type)

	if len(p.Auction.Price) > 0 {
		coin := p.Auction.Price[0]
		if amount, err := decimal.NewFromString(strings.TrimSpace(coin.Amount)); err == nil {
			listing.Price.Amount = amount
		}
		if coin.Denom != "" {
			listing.Price.Denom = coin.Denom
		}
	}

	return listing
}

// auctionState 将 auction.type 映射为可购买状态，未识别的类型按拍卖处理，known 为 false。
func auctionState(typ string) (state AvailabilityState, known bool) {
	switch strings.ToLower(strings.TrimSpace(typ)) {
	case "", "fixed_price", "buy_now":
		return StateBuyNow, true
	case "auction", "timed_auction":
		return StateAuction, true
	default:
		return StateAuction, false
	}
}
