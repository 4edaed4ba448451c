package horizon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// StreamEvent is one item of a transaction stream: a confirmed transaction
// or the terminal error that ended the stream.
type StreamEvent struct {
	Tx  *TransactionRecord
	Err error
}

// streamCloseGrace bounds how long stream teardown waits for the transport
// to release the connection.
const streamCloseGrace = 2 * time.Second

// StreamTransactions consumes Horizon's per-account SSE transaction feed
// starting after cursor ("now" when empty). The returned channel yields
// confirmed transactions in order and closes after the first transport or
// decode error, which is delivered as the final event. Retrying is the
// caller's job; the consumer never reconnects on its own. Cancelling ctx
// closes the channel without an error event.
func (c *Client) StreamTransactions(ctx context.Context, address, cursor string) <-chan StreamEvent {
	out := make(chan StreamEvent)
	go func() {
		defer close(out)
		err := c.streamOnce(ctx, address, cursor, out)
		if err != nil && ctx.Err() == nil {
			select {
			case out <- StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()
	return out
}

func (c *Client) streamOnce(ctx context.Context, address, cursor string, out chan<- StreamEvent) error {
	q := url.Values{}
	if cursor == "" {
		cursor = "now"
	}
	q.Set("cursor", cursor)
	u := c.endpoint + "/accounts/" + address + "/transactions?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")

	// The shared client enforces a request timeout, which would cut the
	// stream; streaming uses its transport without the deadline.
	streamClient := &http.Client{Transport: c.client.Transport}
	resp, err := streamClient.Do(req)
	if err != nil {
		return fmt.Errorf("open stream %s: %w", address, err)
	}
	defer func() {
		done := make(chan struct{})
		go func() {
			resp.Body.Close()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(streamCloseGrace):
		}
	}()
	if resp.StatusCode != http.StatusOK {
		return parseProblem(resp.StatusCode, nil)
	}

	r := bufio.NewReaderSize(resp.Body, 64<<10)
	var event string
	var data strings.Builder
	for {
		line, err := r.ReadString('\n')
		if err != nil {
			return fmt.Errorf("stream %s: %w", address, err)
		}
		line = strings.TrimRight(line, "\r\n")
		switch {
		case line == "":
			if data.Len() > 0 {
				if err := c.dispatchStreamEvent(ctx, event, data.String(), out); err != nil {
					return err
				}
			}
			event = ""
			data.Reset()
		case strings.HasPrefix(line, "event:"):
			event = strings.TrimSpace(line[len("event:"):])
		case strings.HasPrefix(line, "data:"):
			data.WriteString(strings.TrimSpace(line[len("data:"):]))
		case strings.HasPrefix(line, ":"):
			// Keep-alive comment.
		}
	}
}

func (c *Client) dispatchStreamEvent(ctx context.Context, event, data string, out chan<- StreamEvent) error {
	// The feed opens with a "hello" payload and repeats byte-position
	// heartbeats; only message payloads carry transactions.
	if event == "open" || data == `"hello"` || data == `"byebye"` {
		return nil
	}
	var rec TransactionRecord
	if err := json.Unmarshal([]byte(data), &rec); err != nil {
		return fmt.Errorf("decode stream payload: %w", err)
	}
	if rec.PagingToken == "" {
		return nil
	}
	select {
	case out <- StreamEvent{Tx: &rec}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
