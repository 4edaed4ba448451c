package horizon

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
)

// PriceBook estimates native-unit values for fee computation.
type PriceBook interface {
	// NativeEquivalent converts an asset amount to native units.
	NativeEquivalent(ctx context.Context, asset domain.Asset, amount decimal.Decimal) (decimal.Decimal, error)
}

type orderBookResponse struct {
	Bids []priceLevel `json:"bids"`
}

type priceLevel struct {
	Price  string `json:"price"`
	Amount string `json:"amount"`
}

// OrderBook returns the best bid price for selling the given asset against
// buying, in buying units per selling unit. ErrNotFound on an empty book.
func (c *Client) OrderBook(ctx context.Context, selling, buying domain.Asset) (decimal.Decimal, error) {
	q := url.Values{"limit": {"1"}}
	assetParams("selling", selling, q)
	assetParams("buying", buying, q)
	var resp orderBookResponse
	if err := c.get(ctx, "/order_book", q, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("order book: %w", err)
	}
	if len(resp.Bids) == 0 {
		return decimal.Zero, ErrNotFound
	}
	price, err := decimal.NewFromString(resp.Bids[0].Price)
	if err != nil {
		return decimal.Zero, fmt.Errorf("parse bid price %q: %w", resp.Bids[0].Price, err)
	}
	return price, nil
}

// NativeEquivalent converts amount of asset into native units using the best
// order-book bid, falling back to a strict-send path quote when the direct
// book is empty.
func (c *Client) NativeEquivalent(ctx context.Context, asset domain.Asset, amount decimal.Decimal) (decimal.Decimal, error) {
	if asset.IsNative() {
		return amount, nil
	}
	if amount.IsZero() {
		return decimal.Zero, nil
	}
	price, err := c.OrderBook(ctx, asset, domain.NativeAsset())
	if err == nil {
		return amount.Mul(price).Round(7), nil
	}
	if !errors.Is(err, ErrNotFound) {
		return decimal.Zero, err
	}
	quoted, err := c.StrictSendQuote(ctx, asset, amount, domain.NativeAsset())
	if err != nil {
		return decimal.Zero, fmt.Errorf("native equivalent of %s: %w", asset, err)
	}
	return quoted, nil
}

var _ PriceBook = (*Client)(nil)
