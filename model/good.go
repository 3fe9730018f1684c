/*
Copyright 2025 Kagurabot Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package model

import "time"

// Goods type codes as reported by the mall listing endpoint.
const (
	// GoodTypeAnytime marks goods that can be bought whenever stock remains;
	// they never carry an unlock time and are never scheduled.
	GoodTypeAnytime = 1
	// GoodTypeVirtual marks goods delivered into a bound game account.
	GoodTypeVirtual = 2
	// GoodTypePhysical marks goods shipped to a postal address.
	GoodTypePhysical = 4
)

// StockUnlimited is the wire value the mall uses for goods without a stock cap.
const StockUnlimited = -1

// Good is one redeemable catalog item as returned by the mall API.
// A Good is always embedded by value inside an ExchangePlan snapshot and is
// never persisted on its own; the authoritative copy lives server-side and is
// re-fetched at plan creation and again when the plan fires.
type Good struct {
	GoodsID            string `json:"goods_id"`
	Name               string `json:"goods_name"`
	Price              int64  `json:"price"`
	Icon               string `json:"icon"`
	GameBiz            string `json:"game_biz,omitempty"`
	Type               int    `json:"type"`
	UnlockTime         int64  `json:"next_time"` // unix seconds; 0 = not time-gated / sale over / unknown
	Stock              int64  `json:"total"`     // remaining stock; StockUnlimited = no cap
	AccountCycleLimit  int    `json:"account_cycle_limit"`
	AccountExchangeNum int    `json:"account_exchange_num"`
	AccountCycleType   string `json:"account_cycle_type"` // "forever", "month" or empty for unlimited
}

// IsVirtual reports whether redeeming this good requires a bound game account
// rather than a shipping address.
func (g *Good) IsVirtual() bool {
	return g.Type == GoodTypeVirtual
}

// Schedulable reports whether the good is eligible for timed redemption.
// Goods with a zero unlock time are either purchasable at any time or their
// sale is already over; neither state can be raced, so they must never be
// registered with the scheduler.
func (g *Good) Schedulable() bool {
	return g.UnlockTime > 0
}

// SoldOut reports whether the mall has announced stock exhaustion for a
// stock-capped good.
func (g *Good) SoldOut() bool {
	return g.Stock == 0
}

// UnlockAt returns the unlock instant as a time.Time. Only meaningful when
// Schedulable() is true.
func (g *Good) UnlockAt() time.Time {
	return time.Unix(g.UnlockTime, 0)
}

// LimitReached reports whether the owning account has used up its per-cycle
// redemption allowance for this good.
func (g *Good) LimitReached() bool {
	if g.AccountCycleLimit <= 0 {
		return false
	}
	return g.AccountExchangeNum >= g.AccountCycleLimit
}
