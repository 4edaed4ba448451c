package domain

import "github.com/shopspring/decimal"

// AccountSnapshot is one account's state at a single Horizon read. Fetched
// fresh before every rescale decision; a trustline change invalidates it.
type AccountSnapshot struct {
	Address       string
	Sequence      int64
	SubentryCount int
	NumSponsoring int
	NumSponsored  int
	Balances      []BalanceLine
}

// BalanceLine is one asset balance with its locked-up selling liabilities.
type BalanceLine struct {
	Asset              Asset
	Balance            decimal.Decimal
	SellingLiabilities decimal.Decimal
}

// Balance returns the balance line for the given asset and whether the
// account holds a trustline for it (the native line always exists).
func (s *AccountSnapshot) Balance(a Asset) (BalanceLine, bool) {
	for _, b := range s.Balances {
		if b.Asset.Equal(a) {
			return b, true
		}
	}
	return BalanceLine{}, false
}

// Reserve returns the base reserve the account must retain, in native units:
// 2 + 0.5 per subentry, plus 0.5 per sponsoring minus 0.5 per sponsored.
func (s *AccountSnapshot) Reserve() decimal.Decimal {
	n := s.SubentryCount + s.NumSponsoring - s.NumSponsored
	return decimal.NewFromInt(2).Add(decimal.NewFromFloat(0.5).Mul(decimal.NewFromInt(int64(n))))
}

// TradableNative returns the native balance available for trading:
// balance - selling liabilities - reserve, floored at zero.
func (s *AccountSnapshot) TradableNative() decimal.Decimal {
	line, _ := s.Balance(NativeAsset())
	free := line.Balance.Sub(line.SellingLiabilities).Sub(s.Reserve())
	if free.IsNegative() {
		return decimal.Zero
	}
	return free
}

// TradableAsset returns the spendable balance of a non-native asset:
// balance - selling liabilities, floored at zero. For the native asset it
// defers to TradableNative.
func (s *AccountSnapshot) TradableAsset(a Asset) decimal.Decimal {
	if a.IsNative() {
		return s.TradableNative()
	}
	line, ok := s.Balance(a)
	if !ok {
		return decimal.Zero
	}
	free := line.Balance.Sub(line.SellingLiabilities)
	if free.IsNegative() {
		return decimal.Zero
	}
	return free
}
