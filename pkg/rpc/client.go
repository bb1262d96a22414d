package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/mr-tron/base58"

	"github.com/lumera-labs/near-lockup/pkg/metrics"
)

var (
	// ErrAccountNotFound is returned when the account has no contract state at the block.
	ErrAccountNotFound = errors.New("account state not found")
	// ErrRPC wraps JSON-RPC error objects returned by the node.
	ErrRPC = errors.New("near rpc error")
)

// stateKey is the storage key under which near-sdk contracts persist their state.
const stateKey = "STATE"

type Client struct {
	base    string
	client  *http.Client
	metrics *metrics.LockupMetrics
	nextID  atomic.Uint64
}

// NewClient returns a JSON-RPC client for the NEAR node at base.
func NewClient(base string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimRight(base, "/"), client: httpClient}
}

// WithMetrics records request counts and latency to m.
func (c *Client) WithMetrics(m *metrics.LockupMetrics) *Client {
	c.metrics = m
	return c
}

// Error is a JSON-RPC error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Name    string          `json:"name,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
	Cause   *struct {
		Name string          `json:"name"`
		Info json.RawMessage `json:"info,omitempty"`
	} `json:"cause,omitempty"`
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("code %d: %s", e.Code, e.Message)
	if e.Cause != nil && e.Cause.Name != "" {
		msg += " (" + e.Cause.Name + ")"
	}
	if len(e.Data) > 0 {
		msg += ": " + string(e.Data)
	}
	return msg
}

func (e *Error) Unwrap() error { return ErrRPC }

func (e *Error) unknownAccount() bool {
	if e.Cause != nil && e.Cause.Name == "UNKNOWN_ACCOUNT" {
		return true
	}
	return strings.Contains(string(e.Data), "does not exist while viewing")
}

// call performs one JSON-RPC request and decodes its result into out.
func (c *Client) call(ctx context.Context, method string, params any, out any) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		c.metrics.ObserveRPC(method, outcome, time.Since(start))
	}()

	body, err := json.Marshal(struct {
		JSONRPC string `json:"jsonrpc"`
		ID      string `json:"id"`
		Method  string `json:"method"`
		Params  any    `json:"params"`
	}{"2.0", strconv.FormatUint(c.nextID.Add(1), 10), method, params})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("near rpc %s: status %d: %s", method, resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var envelope struct {
		Result json.RawMessage `json:"result"`
		Error  *Error          `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return fmt.Errorf("near rpc %s: decode response: %w", method, err)
	}
	if envelope.Error != nil {
		return fmt.Errorf("near rpc %s: %w", method, envelope.Error)
	}
	if len(envelope.Result) == 0 || string(envelope.Result) == "null" {
		return fmt.Errorf("near rpc %s: empty result", method)
	}
	if err := json.Unmarshal(envelope.Result, out); err != nil {
		return fmt.Errorf("near rpc %s: decode result: %w", method, err)
	}
	return nil
}

// BlockHeader holds the fields of a block needed to evaluate a lockup.
type BlockHeader struct {
	Height uint64
	Hash   string
	// Timestamp is in nanoseconds since the Unix epoch.
	Timestamp uint64
}

// Time converts the block timestamp to a time.Time.
func (h BlockHeader) Time() time.Time {
	return time.Unix(0, int64(h.Timestamp)).UTC()
}

// Block returns the header of the block at height, or of the latest final block
// when height is nil.
func (c *Client) Block(ctx context.Context, height *uint64) (*BlockHeader, error) {
	var params any = map[string]any{"finality": "final"}
	if height != nil {
		params = map[string]any{"block_id": *height}
	}
	var out struct {
		Header struct {
			Height           uint64 `json:"height"`
			Hash             string `json:"hash"`
			Timestamp        uint64 `json:"timestamp"`
			TimestampNanosec string `json:"timestamp_nanosec"`
		} `json:"header"`
	}
	if err := c.call(ctx, "block", params, &out); err != nil {
		return nil, err
	}
	h := out.Header
	ts := h.Timestamp
	if h.TimestampNanosec != "" {
		v, err := strconv.ParseUint(h.TimestampNanosec, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("near rpc block: timestamp_nanosec %q: %w", h.TimestampNanosec, err)
		}
		ts = v
	}
	if err := checkBlockHash(h.Hash); err != nil {
		return nil, fmt.Errorf("near rpc block %d: %w", h.Height, err)
	}
	return &BlockHeader{Height: h.Height, Hash: h.Hash, Timestamp: ts}, nil
}

func checkBlockHash(hash string) error {
	b, err := base58.Decode(hash)
	if err != nil {
		return fmt.Errorf("invalid block hash %q: %w", hash, err)
	}
	if len(b) != 32 {
		return fmt.Errorf("invalid block hash %q: %d bytes", hash, len(b))
	}
	return nil
}

// ViewState returns the raw contract state stored by accountID at the given height.
// It returns ErrAccountNotFound when the account or its state does not exist.
func (c *Client) ViewState(ctx context.Context, accountID string, height uint64) ([]byte, error) {
	params := map[string]any{
		"request_type":  "view_state",
		"block_id":      height,
		"account_id":    accountID,
		"prefix_base64": "",
	}
	var out struct {
		BlockHeight uint64 `json:"block_height"`
		BlockHash   string `json:"block_hash"`
		Values      []struct {
			Key   string `json:"key"`
			Value string `json:"value"`
		} `json:"values"`
	}
	if err := c.call(ctx, "query", params, &out); err != nil {
		var rpcErr *Error
		if errors.As(err, &rpcErr) && rpcErr.unknownAccount() {
			return nil, fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
		}
		return nil, err
	}
	if len(out.Values) == 0 {
		return nil, fmt.Errorf("%s: %w", accountID, ErrAccountNotFound)
	}
	value := out.Values[0].Value
	for _, v := range out.Values {
		key, err := base64.StdEncoding.DecodeString(v.Key)
		if err == nil && string(key) == stateKey {
			value = v.Value
			break
		}
	}
	raw, err := base64.StdEncoding.DecodeString(value)
	if err != nil {
		return nil, fmt.Errorf("near rpc query %s: state value: %w", accountID, err)
	}
	return raw, nil
}
