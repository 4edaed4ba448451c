// Package horizon is the engine's ledger access gateway: account state,
// fee derivation, path quoting, transaction submission and confirmation,
// and the per-account SSE transaction stream.
package horizon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stellar-copy-engine/internal/domain"
	"stellar-copy-engine/internal/strkey"
)

// Default configuration values.
const (
	DefaultTimeout         = 30 * time.Second
	DefaultConfirmAttempts = 30
	DefaultConfirmInterval = 2 * time.Second

	// FallbackFee is used when the latest ledger carries no transactions.
	FallbackFee int64 = 10000
	// MinFeePerOp is the floor applied to the recommended per-op fee.
	MinFeePerOp int64 = 200
)

// ErrNotFound marks a 404 from Horizon (transaction not ingested yet,
// unknown account).
var ErrNotFound = errors.New("horizon: resource not found")

// Error is a Horizon problem response, carrying the ledger's result codes
// when the submission failed.
type Error struct {
	Status  int
	Title   string
	Detail  string
	TxCode  string
	OpCodes []string
}

func (e *Error) Error() string {
	if e.TxCode != "" {
		return fmt.Sprintf("horizon: %s (%d): tx %s ops %v", e.Title, e.Status, e.TxCode, e.OpCodes)
	}
	return fmt.Sprintf("horizon: %s (%d): %s", e.Title, e.Status, e.Detail)
}

// Client talks to one Horizon instance.
type Client struct {
	endpoint        string
	client          *http.Client
	confirmAttempts int
	confirmInterval time.Duration
	log             zerolog.Logger
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.client.Timeout = d }
}

// WithConfirmPolicy overrides the confirmation poll loop bounds.
func WithConfirmPolicy(attempts int, interval time.Duration) ClientOption {
	return func(c *Client) {
		c.confirmAttempts = attempts
		c.confirmInterval = interval
	}
}

// WithLogger sets the client logger.
func WithLogger(log zerolog.Logger) ClientOption {
	return func(c *Client) { c.log = log }
}

// NewClient creates a Horizon client for the given base URL.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint:        strings.TrimRight(endpoint, "/"),
		client:          &http.Client{Timeout: DefaultTimeout},
		confirmAttempts: DefaultConfirmAttempts,
		confirmInterval: DefaultConfirmInterval,
		log:             zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("horizon get %s: %w", path, err)
	}
	defer resp.Body.Close()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		return parseProblem(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseProblem(status int, body []byte) error {
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
		Extras struct {
			ResultCodes struct {
				Transaction string   `json:"transaction"`
				Operations  []string `json:"operations"`
			} `json:"result_codes"`
		} `json:"extras"`
	}
	herr := &Error{Status: status, Title: "request failed"}
	if err := json.Unmarshal(body, &problem); err == nil {
		herr.Title = problem.Title
		herr.Detail = problem.Detail
		herr.TxCode = problem.Extras.ResultCodes.Transaction
		herr.OpCodes = problem.Extras.ResultCodes.Operations
	}
	return herr
}

// Account fetches a fresh account snapshot.
func (c *Client) Account(ctx context.Context, address string) (*domain.AccountSnapshot, error) {
	var resp accountResponse
	if err := c.get(ctx, "/accounts/"+address, nil, &resp); err != nil {
		return nil, fmt.Errorf("load account %s: %w", address, err)
	}
	snap := &domain.AccountSnapshot{
		Address:       resp.AccountID,
		Sequence:      resp.Sequence,
		SubentryCount: resp.SubentryCount,
		NumSponsoring: resp.NumSponsoring,
		NumSponsored:  resp.NumSponsored,
	}
	for _, b := range resp.Balances {
		bal, err := decimal.NewFromString(b.Balance)
		if err != nil {
			return nil, fmt.Errorf("parse balance %q: %w", b.Balance, err)
		}
		liab := decimal.Zero
		if b.SellingLiabilities != "" {
			if liab, err = decimal.NewFromString(b.SellingLiabilities); err != nil {
				return nil, fmt.Errorf("parse liabilities %q: %w", b.SellingLiabilities, err)
			}
		}
		snap.Balances = append(snap.Balances, domain.BalanceLine{
			Asset:              b.asset(),
			Balance:            bal,
			SellingLiabilities: liab,
		})
	}
	return snap, nil
}

// RecommendedFee derives a per-operation fee from the latest ledger's
// transaction set: the median of max fees, floored at MinFeePerOp, with
// FallbackFee when the ledger is empty or unreadable.
func (c *Client) RecommendedFee(ctx context.Context) int64 {
	var ledgers embeddedRecords[ledgerRecord]
	q := url.Values{"order": {"desc"}, "limit": {"1"}}
	if err := c.get(ctx, "/ledgers", q, &ledgers); err != nil || len(ledgers.Embedded.Records) == 0 {
		c.log.Debug().Err(err).Msg("fee lookup failed, using fallback")
		return FallbackFee
	}
	seq := ledgers.Embedded.Records[0].Sequence
	var txs embeddedRecords[feeTxRecord]
	q = url.Values{"limit": {"200"}}
	if err := c.get(ctx, fmt.Sprintf("/ledgers/%d/transactions", seq), q, &txs); err != nil {
		c.log.Debug().Err(err).Msg("fee lookup failed, using fallback")
		return FallbackFee
	}
	fees := make([]int64, 0, len(txs.Embedded.Records))
	for _, tx := range txs.Embedded.Records {
		fees = append(fees, tx.MaxFee)
	}
	if len(fees) == 0 {
		return FallbackFee
	}
	sort.Slice(fees, func(i, j int) bool { return fees[i] < fees[j] })
	fee := fees[len(fees)/2]
	if fee < MinFeePerOp {
		fee = MinFeePerOp
	}
	return fee
}

func assetParams(prefix string, a domain.Asset, q url.Values) {
	if a.IsNative() {
		q.Set(prefix+"_asset_type", "native")
		return
	}
	typ := "credit_alphanum4"
	if len(a.Code) > 4 {
		typ = "credit_alphanum12"
	}
	q.Set(prefix+"_asset_type", typ)
	q.Set(prefix+"_asset_code", a.Code)
	q.Set(prefix+"_asset_issuer", a.Issuer)
}

func destinationAssetParam(a domain.Asset) string {
	if a.IsNative() {
		return "native"
	}
	return a.Code + ":" + a.Issuer
}

// StrictSendQuote returns the best destination amount for sending exactly
// sendAmount of source toward dest. ErrNotFound when no path exists.
func (c *Client) StrictSendQuote(ctx context.Context, source domain.Asset, sendAmount decimal.Decimal, dest domain.Asset) (decimal.Decimal, error) {
	q := url.Values{}
	assetParams("source", source, q)
	q.Set("source_amount", sendAmount.StringFixed(7))
	q.Set("destination_assets", destinationAssetParam(dest))
	var resp embeddedRecords[pathRecord]
	if err := c.get(ctx, "/paths/strict-send", q, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("strict send paths: %w", err)
	}
	best := decimal.Zero
	for _, rec := range resp.Embedded.Records {
		amt, err := decimal.NewFromString(rec.DestinationAmount)
		if err != nil {
			continue
		}
		if amt.GreaterThan(best) {
			best = amt
		}
	}
	if best.IsZero() {
		return decimal.Zero, ErrNotFound
	}
	return best, nil
}

// StrictReceiveQuote returns the cheapest source amount that delivers
// exactly destAmount of dest from source. ErrNotFound when no path exists.
func (c *Client) StrictReceiveQuote(ctx context.Context, source domain.Asset, dest domain.Asset, destAmount decimal.Decimal) (decimal.Decimal, error) {
	q := url.Values{}
	assetParams("destination", dest, q)
	q.Set("destination_amount", destAmount.StringFixed(7))
	q.Set("source_assets", destinationAssetParam(source))
	var resp embeddedRecords[pathRecord]
	if err := c.get(ctx, "/paths/strict-receive", q, &resp); err != nil {
		return decimal.Zero, fmt.Errorf("strict receive paths: %w", err)
	}
	var best decimal.Decimal
	for _, rec := range resp.Embedded.Records {
		amt, err := decimal.NewFromString(rec.SourceAmount)
		if err != nil {
			continue
		}
		if best.IsZero() || amt.LessThan(best) {
			best = amt
		}
	}
	if best.IsZero() {
		return decimal.Zero, ErrNotFound
	}
	return best, nil
}

// SubmitAsync submits a signed envelope through the async endpoint and
// returns the transaction hash Horizon computed.
func (c *Client) SubmitAsync(ctx context.Context, envelopeB64 string) (string, error) {
	form := url.Values{"tx": {envelopeB64}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/transactions_async", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	defer resp.Body.Close()
	var out submitAsyncResponse
	if err := decodeResponse(resp, &out); err != nil {
		return "", fmt.Errorf("submit transaction: %w", err)
	}
	if out.TxStatus == "ERROR" {
		return out.Hash, fmt.Errorf("submit transaction: rejected with status %s", out.TxStatus)
	}
	return out.Hash, nil
}

// Transaction fetches one transaction by hash. ErrNotFound until ingested.
func (c *Client) Transaction(ctx context.Context, hash string) (*TransactionRecord, error) {
	var rec TransactionRecord
	if err := c.get(ctx, "/transactions/"+hash, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// Operations lists a transaction's operations.
func (c *Client) Operations(ctx context.Context, hash string) ([]OperationRecord, error) {
	var resp embeddedRecords[OperationRecord]
	q := url.Values{"limit": {"200"}}
	if err := c.get(ctx, "/transactions/"+hash+"/operations", q, &resp); err != nil {
		return nil, fmt.Errorf("list operations %s: %w", hash, err)
	}
	return resp.Embedded.Records, nil
}

// Effects lists a transaction's effects.
func (c *Client) Effects(ctx context.Context, hash string) ([]EffectRecord, error) {
	var resp embeddedRecords[EffectRecord]
	q := url.Values{"limit": {"50"}}
	if err := c.get(ctx, "/transactions/"+hash+"/effects", q, &resp); err != nil {
		return nil, fmt.Errorf("list effects %s: %w", hash, err)
	}
	return resp.Embedded.Records, nil
}

// AwaitConfirmation polls for a submitted transaction until it appears in a
// ledger. "Not found" is retried up to the attempt bound; a ledger-reported
// failure is terminal immediately.
func (c *Client) AwaitConfirmation(ctx context.Context, hash string) (*TransactionRecord, error) {
	for attempt := 0; attempt < c.confirmAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.confirmInterval):
			}
		}
		rec, err := c.Transaction(ctx, hash)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			c.log.Debug().Err(err).Str("hash", hash).Msg("confirmation poll error")
			continue
		}
		if !rec.Successful {
			return rec, fmt.Errorf("transaction %s failed in ledger %d: result %s", hash, rec.Ledger, rec.ResultXDR)
		}
		return rec, nil
	}
	return nil, fmt.Errorf("transaction %s not confirmed after %d attempts", hash, c.confirmAttempts)
}

// ResolveMuxed maps an M-address to its underlying G-address. A plain
// G-address passes through unchanged.
func (c *Client) ResolveMuxed(addr string) (string, error) {
	if len(addr) > 0 && addr[0] == 'M' {
		pub, _, err := strkey.DecodeMuxed(addr)
		if err != nil {
			return "", fmt.Errorf("resolve muxed %s: %w", addr, err)
		}
		return strkey.EncodeAccountID(pub), nil
	}
	if _, err := strkey.DecodeAccountID(addr); err != nil {
		return "", fmt.Errorf("resolve account %s: %w", addr, err)
	}
	return addr, nil
}
