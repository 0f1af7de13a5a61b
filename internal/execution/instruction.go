package execution

import (
	"fmt"

	"nft-sniper/internal/marketplace"
)

// NFTRef 指向合约中的单个 token。
type NFTRef struct {
	Address string `json:"address"`
	TokenID string `json:"token_id"`
}

// BuyNow 为一口价购买参数。
type BuyNow struct {
	ExpectedPrice Coin    `json:"expected_price"`
	NFT           *NFTRef `json:"nft,omitempty"`
}

// BuyNowMsg 为单个 token 的购买指令。
type BuyNowMsg struct {
	BuyNow BuyNow `json:"buy_now"`
}

// BidType 描述批量出价中的出价方式。
type BidType struct {
	BuyNow BuyNow `json:"buy_now"`
}

// Bid 为批量指令中的单个出价。
type Bid struct {
	BidType BidType `json:"bid_type"`
	NFT     NFTRef  `json:"nft"`
}

// BatchBids 为批量出价列表。
type BatchBids struct {
	Bids []Bid `json:"bids"`
}

// BatchBidsMsg 为一次提交多个 token 的购买指令。
type BatchBidsMsg struct {
	BatchBids BatchBids `json:"batch_bids"`
}

func expectedPrice(l marketplace.Listing, denom string) (Coin, error) {
	if !l.Purchasable() {
		return Coin{}, fmt.Errorf("execution: token %s 当前不可购买", l.TokenID)
	}
	return Coin{Amount: l.Price.Amount.String(), Denom: denom}, nil
}

// NewBuyNowMsg 构造单个 token 的购买指令。
func NewBuyNowMsg(l marketplace.Listing, collection, denom string) (BuyNowMsg, error) {
	price, err := expectedPrice(l, denom)
	if err != nil {
		return BuyNowMsg{}, err
	}
	return BuyNowMsg{BuyNow: BuyNow{
		ExpectedPrice: price,
		NFT:           &NFTRef{Address: collection, TokenID: l.TokenID},
	}}, nil
}

// NewBatchBidsMsg 构造批量购买指令。
func NewBatchBidsMsg(listings []marketplace.Listing, collection, denom string) (BatchBidsMsg, error) {
	if len(listings) == 0 {
		return BatchBidsMsg{}, fmt.Errorf("execution: 批量指令至少包含一个挂单")
	}
	bids := make([]Bid, 0, len(listings))
	for _, l := range listings {
		price, err := expectedPrice(l, denom)
		if err != nil {
			return BatchBidsMsg{}, err
		}
		bids = append(bids, Bid{
			BidType: BidType{BuyNow: BuyNow{ExpectedPrice: price}},
			NFT:     NFTRef{Address: collection, TokenID: l.TokenID},
		})
	}
	return BatchBidsMsg{BatchBids: BatchBids{Bids: bids}}, nil
}
