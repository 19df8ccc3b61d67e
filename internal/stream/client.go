// Package stream implements StreamClient (spec §4.1): a gorilla/websocket
// subscription client with checkpoint resume. The base dial/subscribe
// plumbing generalizes the trading bot's internal/websocket package (its
// AccountSubscribe/Unsubscribe naming, subscription-ID bookkeeping, and
// reconnect-on-error idiom) from single-account balance/price feeds into
// a single filtered transaction stream.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"solana-tx-tracker/internal/trackerr"
)

// Commitment mirrors the three Solana commitment levels a filter can pin to.
type Commitment string

const (
	Processed Commitment = "PROCESSED"
	Confirmed Commitment = "CONFIRMED"
	Finalized Commitment = "FINALIZED"
)

// Filter selects which transactions the stream delivers (spec §4.1).
type Filter struct {
	IncludeAddresses []string
	ExcludeAddresses []string
	Commitment       Commitment
	Vote             bool
	Failed           bool
	FromSlot         *uint64
}

// clear returns a copy of f with an empty include-list, used to ask the
// server to release resources before a cooperative close (spec §4.1).
func (f Filter) clear() Filter {
	cleared := f
	cleared.IncludeAddresses = nil
	return cleared
}

// Event is one inbound transaction notification.
type Event struct {
	Signature string
	Slot      uint64
	CreatedAt *int64
	RawTx     []byte
}

type subscribeMessage struct {
	Type   string `json:"type"`
	Filter struct {
		IncludeAddresses []string `json:"includeAddresses,omitempty"`
		ExcludeAddresses []string `json:"excludeAddresses,omitempty"`
		Commitment       string   `json:"commitment,omitempty"`
		Vote             bool     `json:"vote"`
		Failed           bool     `json:"failed"`
		FromSlot         *uint64  `json:"fromSlot,omitempty"`
	} `json:"filter"`
}

func newSubscribeMessage(f Filter) subscribeMessage {
	msg := subscribeMessage{Type: "subscribe"}
	msg.Filter.IncludeAddresses = f.IncludeAddresses
	msg.Filter.ExcludeAddresses = f.ExcludeAddresses
	msg.Filter.Commitment = string(f.Commitment)
	msg.Filter.Vote = f.Vote
	msg.Filter.Failed = f.Failed
	msg.Filter.FromSlot = f.FromSlot
	return msg
}

type inboundMessage struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	CreatedAt *int64          `json:"createdAt,omitempty"`
	RawTx     json.RawMessage `json:"rawTx"`
}

// checkpointRetryBudget bounds how many consecutive reconnects may reuse
// a checkpoint (fromSlot) before the client falls back to the tip (spec
// §4.1 resume algorithm).
const checkpointRetryBudget = 5

// Client is a checkpoint-resuming subscription client over one endpoint.
type Client struct {
	url   string
	token string
	dial  *websocket.Dialer

	mu            sync.Mutex
	conn          *websocket.Conn
	lastSlot      uint64
	hasCheckpoint bool
	retryCount    int
	lastEventAt   time.Time
	gotEvent      bool

	stopCh chan struct{} // set fresh by each Run call, so Stop+Run can repeat
}

// New builds a Client against a websocket endpoint. token, if non-empty,
// is sent as a bearer Authorization header on dial.
func New(url, token string) *Client {
	return &Client{
		url:  url,
		token: token,
		dial: websocket.DefaultDialer,
	}
}

// Run opens the subscription and delivers events to onEvent until ctx is
// cancelled or Stop is called, reconnecting per the checkpoint-resume
// algorithm on transient errors (spec §4.1). Each call gets its own stop
// signal, so a client may be Run again after a prior Stop.
func (c *Client) Run(ctx context.Context, filter Filter, onEvent func(Event)) error {
	c.mu.Lock()
	stopCh := make(chan struct{})
	c.stopCh = stopCh
	c.hasCheckpoint = false
	c.retryCount = 0
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stopCh:
			return nil
		default:
		}

		received, err := c.runOnce(ctx, stopCh, filter, onEvent)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		select {
		case <-stopCh:
			return nil
		default:
		}

		if err != nil {
			log.Warn().Err(trackerr.New(trackerr.StreamTransient, "stream.Run", err)).Msg("stream connection failed, reconnecting")
		}

		if received {
			c.retryCount = 0
		}

		select {
		case <-time.After(1 * time.Second):
		case <-ctx.Done():
			return ctx.Err()
		}

		c.mu.Lock()
		if c.hasCheckpoint && c.retryCount < checkpointRetryBudget {
			slot := c.lastSlot
			filter.FromSlot = &slot
			c.retryCount++
		} else {
			filter.FromSlot = nil
			c.retryCount = 0
		}
		c.mu.Unlock()
	}
}

// runOnce dials once, subscribes with filter, and reads events until the
// connection errors, ctx is cancelled, or Stop is requested. It reports
// whether at least one message was received (spec §4.1 "progress").
func (c *Client) runOnce(ctx context.Context, stopCh chan struct{}, filter Filter, onEvent func(Event)) (received bool, err error) {
	header := map[string][]string{}
	if c.token != "" {
		header["Authorization"] = []string{"Bearer " + c.token}
	}

	conn, _, err := c.dial.DialContext(ctx, c.url, header)
	if err != nil {
		return false, fmt.Errorf("dial stream: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
	}()

	if err := conn.WriteJSON(newSubscribeMessage(filter)); err != nil {
		return false, fmt.Errorf("send subscription: %w", err)
	}

	connClosed := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
		case <-stopCh:
		case <-connClosed:
			return
		}
		conn.Close()
	}()
	defer close(connClosed)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return received, fmt.Errorf("read stream: %w", err)
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Warn().Err(trackerr.New(trackerr.DecodeFailure, "stream.runOnce", err)).Msg("malformed stream message, dropping")
			continue
		}
		if msg.Signature == "" {
			continue
		}

		received = true
		c.mu.Lock()
		c.lastSlot = msg.Slot
		c.hasCheckpoint = true
		c.lastEventAt = time.Now()
		c.gotEvent = true
		c.mu.Unlock()

		onEvent(Event{
			Signature: msg.Signature,
			Slot:      msg.Slot,
			CreatedAt: msg.CreatedAt,
			RawTx:     []byte(msg.RawTx),
		})
	}
}

// Stop cooperatively shuts the stream down: it asks the server to clear
// the filter, waits briefly for it to release resources, then closes the
// connection (spec §4.1).
func (c *Client) Stop() {
	c.mu.Lock()
	conn := c.conn
	stopCh := c.stopCh
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteJSON(newSubscribeMessage(Filter{}.clear()))
	}

	time.Sleep(200 * time.Millisecond)

	if stopCh != nil {
		select {
		case <-stopCh:
		default:
			close(stopCh)
		}
	}

	c.mu.Lock()
	if c.conn != nil {
		c.conn.Close()
	}
	c.mu.Unlock()
}

// LastEventAt returns the time of the most recently received event, or
// ok=false if none has been received yet on this client.
func (c *Client) LastEventAt() (t time.Time, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastEventAt, c.gotEvent
}
