// Package filter 提供对挂单集合的纯函数过滤，无副作用、结果保持输入顺序。
package filter

import (
	"github.com/shopspring/decimal"

	"nft-sniper/internal/marketplace"
)

// ByTraits 保留所有特征都出现在期望集合中的挂单。
// 挂单带有未被请求的特征类型时会被排除；期望集合为空时只保留没有特征的挂单。
func ByTraits(listings []marketplace.Listing, criteria []marketplace.Trait) []marketplace.Listing {
	desired := make(map[marketplace.Trait]struct{}, len(criteria))
	for _, c := range criteria {
		desired[c] = struct{}{}
	}

	out := make([]marketplace.Listing, 0, len(listings))
	for _, listing := range listings {
		if matchesAll(listing.Traits, desired) {
			out = append(out, listing)
		}
	}
	return out
}

func matchesAll(traits []marketplace.Trait, desired map[marketplace.Trait]struct{}) bool {
	for _, trait := range traits {
		if _, ok := desired[trait]; !ok {
			return false
		}
	}
	return true
}

// ByIdentifiers 保留被请求、尚未购买且当前可购买的挂单。
func ByIdentifiers(listings []marketplace.Listing, requested []string, bought func(string) bool) []marketplace.Listing {
	wanted := make(map[string]struct{}, len(requested))
	for _, id := range requested {
		wanted[id] = struct{}{}
	}

	out := make([]marketplace.Listing, 0, len(listings))
	for _, listing := range listings {
		if _, ok := wanted[listing.TokenID]; !ok {
			continue
		}
		if bought != nil && bought(listing.TokenID) {
			continue
		}
		if !listing.Purchasable() {
			continue
		}
		out = append(out, listing)
	}
	return out
}

// UnderPrice 保留价格不高于上限的挂单，上限非正时不过滤。
func UnderPrice(listings []marketplace.Listing, ceiling decimal.Decimal) []marketplace.Listing {
	if !ceiling.IsPositive() {
		return listings
	}
	out := make([]marketplace.Listing, 0, len(listings))
	for _, listing := range listings {
		if listing.Price.Amount.LessThanOrEqual(ceiling) {
			out = append(out, listing)
		}
	}
	return out
}

// Purchasable 剔除当前不可一口价购买的挂单。
func Purchasable(listings []marketplace.Listing) []marketplace.Listing {
	out := make([]marketplace.Listing, 0, len(listings))
	for _, listing := range listings {
		if listing.Purchasable() {
			out = append(out, listing)
		}
	}
	return out
}

// ExcludeBought 剔除已购买的挂单。
func ExcludeBought(listings []marketplace.Listing, bought func(string) bool) []marketplace.Listing {
	if bought == nil {
		return listings
	}
	out := make([]marketplace.Listing, 0, len(listings))
	for _, listing := range listings {
		if !bought(listing.TokenID) {
			out = append(out, listing)
		}
	}
	return out
}
