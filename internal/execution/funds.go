package execution

import (
	"fmt"

	"github.com/shopspring/decimal"

	"nft-sniper/internal/marketplace"
)

var one = decimal.NewFromInt(1)

// FeeInclusive 返回含手续费的价格 price * (1 + feeRate)。
func FeeInclusive(price, feeRate decimal.Decimal) decimal.Decimal {
	return price.Mul(one.Add(feeRate))
}

// Funds 汇总挂单的含费价格，向上取整为链上最小单位。
func Funds(listings []marketplace.Listing, feeRate decimal.Decimal, denom string) ([]Coin, error) {
	total := decimal.Zero
	for _, l := range listings {
		if !l.Price.Amount.IsPositive() {
			return nil, fmt.Errorf("execution: token %s 价格无效 %s", l.TokenID, l.Price.Amount)
		}
		if l.Price.Denom != "" && l.Price.Denom != denom {
			return nil, fmt.Errorf("execution: token %s 计价单位 %s 与配置 %s 不一致", l.TokenID, l.Price.Denom, denom)
		}
		total = total.Add(FeeInclusive(l.Price.Amount, feeRate))
	}
	if !total.IsPositive() {
		return nil, fmt.Errorf("execution: 资金总额无效")
	}
	// 链上 Coin 数量只能是整数最小单位，合计后统一向上取整一次，
	// 因此 [10,20,30] 按 1.02 倍得 61.2，发送 62
	return []Coin{{Amount: total.Ceil().String(), Denom: denom}}, nil
}
