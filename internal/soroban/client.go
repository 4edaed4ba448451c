// Package soroban is a minimal Soroban JSON-RPC client covering the calls
// the engine needs: simulating a rewritten contract invocation before it is
// signed.
package soroban

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"
)

// DefaultTimeout bounds one RPC round trip.
const DefaultTimeout = 30 * time.Second

// Client implements the Soroban RPC surface over HTTP JSON-RPC 2.0.
type Client struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) { c.client.Timeout = d }
}

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a Soroban RPC client.
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: endpoint,
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// rpcRequest represents a JSON-RPC 2.0 request.
type rpcRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      uint64      `json:"id"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// rpcResponse represents a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// rpcError represents a JSON-RPC 2.0 error.
type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// call performs one JSON-RPC call. Failed simulations are trade-terminal,
// so there is no retry layer here.
func (c *Client) call(ctx context.Context, method string, params, result interface{}) error {
	reqBody := rpcRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("rpc %s: status %d", method, resp.StatusCode)
	}
	var rpcResp rpcResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	if rpcResp.Error != nil {
		return fmt.Errorf("rpc %s: %w", method, rpcResp.Error)
	}
	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("decode result: %w", err)
		}
	}
	return nil
}

// SimulationResult is the outcome of simulating a contract invocation:
// either Error is set, or the resource data and authorization entries to
// splice into the final transaction.
type SimulationResult struct {
	// TransactionDataRaw is the SorobanTransactionData XDR blob.
	TransactionDataRaw []byte
	// MinResourceFee in stroops, added to the inclusion fee.
	MinResourceFee int64
	// AuthRaw holds the required authorization entries as raw XDR.
	AuthRaw [][]byte
	// Error carries the simulation failure verbatim when the call would
	// fail on-chain.
	Error string
}

// Failed reports whether the simulation rejected the invocation.
func (r *SimulationResult) Failed() bool {
	return r.Error != ""
}

type simulateResponse struct {
	TransactionData string `json:"transactionData"`
	MinResourceFee  string `json:"minResourceFee"`
	Results         []struct {
		Auth []string `json:"auth"`
	} `json:"results"`
	Error string `json:"error"`
}

// SimulateTransaction simulates a base64 envelope against current ledger
// state.
func (c *Client) SimulateTransaction(ctx context.Context, envelopeB64 string) (*SimulationResult, error) {
	params := map[string]string{"transaction": envelopeB64}
	var resp simulateResponse
	if err := c.call(ctx, "simulateTransaction", params, &resp); err != nil {
		return nil, err
	}
	out := &SimulationResult{Error: resp.Error}
	if out.Error != "" {
		return out, nil
	}
	var err error
	if out.TransactionDataRaw, err = base64.StdEncoding.DecodeString(resp.TransactionData); err != nil {
		return nil, fmt.Errorf("decode transaction data: %w", err)
	}
	if resp.MinResourceFee != "" {
		if out.MinResourceFee, err = strconv.ParseInt(resp.MinResourceFee, 10, 64); err != nil {
			return nil, fmt.Errorf("parse min resource fee %q: %w", resp.MinResourceFee, err)
		}
	}
	for _, result := range resp.Results {
		for _, auth := range result.Auth {
			raw, err := base64.StdEncoding.DecodeString(auth)
			if err != nil {
				return nil, fmt.Errorf("decode auth entry: %w", err)
			}
			out.AuthRaw = append(out.AuthRaw, raw)
		}
	}
	return out, nil
}

// LatestLedger returns the RPC node's view of the latest ledger sequence,
// used as a liveness probe.
func (c *Client) LatestLedger(ctx context.Context) (int64, error) {
	var resp struct {
		Sequence int64 `json:"sequence"`
	}
	if err := c.call(ctx, "getLatestLedger", nil, &resp); err != nil {
		return 0, err
	}
	return resp.Sequence, nil
}
