// Package xrpl adapts the engine's LedgerGateway contract onto an XRPL
// escrow submission service speaking JSON-RPC over HTTP. The service holds
// the signing capability; this client only decides the ledger-native
// parameters and classifies failures for the engine's retry policy.
package xrpl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"bountyx/native/bounty"
	"bountyx/observability"
)

// rippleEpochOffset converts Unix seconds to the ledger's seconds-since-2000
// timestamps used by CancelAfter.
const rippleEpochOffset = 946684800

const defaultCallTimeout = 10 * time.Second

// Client implements bounty.LedgerGateway against an escrow submission
// service.
type Client struct {
	baseURL   string
	authToken string
	http      *http.Client
	limiter   *rate.Limiter
	metrics   *observability.LedgerMetrics
	nextID    atomic.Int64
}

// NewClient builds a gateway client. The limiter bounds outbound call rate
// across all concurrent engine operations; pass zero to disable limiting.
func NewClient(baseURL, authToken string, callsPerSecond float64) *Client {
	limiter := rate.NewLimiter(rate.Inf, 1)
	if callsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(callsPerSecond), int(callsPerSecond)+1)
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		authToken: authToken,
		http: &http.Client{
			Timeout: defaultCallTimeout,
		},
		limiter: limiter,
		metrics: observability.Ledger(),
	}
}

type jsonRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int64       `json:"id"`
}

type jsonRPCResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      int64            `json:"id"`
	Result  json.RawMessage  `json:"result"`
	Error   *jsonRPCErrorObj `json:"error"`
}

type jsonRPCErrorObj struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type escrowCreateResult struct {
	TxHash        string `json:"txHash"`
	OfferSequence uint32 `json:"offerSequence"`
}

type escrowFindResult struct {
	Found         bool   `json:"found"`
	TxHash        string `json:"txHash"`
	OfferSequence uint32 `json:"offerSequence"`
}

type accountReserveResult struct {
	Drops string `json:"drops"`
}

// CreateEscrow submits a conditional escrow creation and returns the
// ledger-assigned handle.
func (c *Client) CreateEscrow(ctx context.Context, req bounty.EscrowCreateRequest) (*bounty.EscrowHandle, error) {
	amount := big.NewInt(0)
	if req.Amount != nil {
		amount = req.Amount
	}
	params := map[string]interface{}{
		"source":      req.Source,
		"destination": req.Destination,
		"amount":      amount.String(),
		"condition":   req.ConditionHex,
		"cancelAfter": RippleTime(req.CancelAfter),
		"reference":   req.Reference,
	}
	var result escrowCreateResult
	if err := c.call(ctx, "escrow_create", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	return &bounty.EscrowHandle{TxHash: result.TxHash, OfferSequence: result.OfferSequence}, nil
}

// FinishEscrow releases an escrow with the fulfillment proof.
func (c *Client) FinishEscrow(ctx context.Context, req bounty.EscrowFinishRequest) error {
	params := map[string]interface{}{
		"owner":         req.Owner,
		"offerSequence": req.Handle.OfferSequence,
		"condition":     req.ConditionHex,
		"fulfillment":   req.FulfillmentHex,
	}
	return c.call(ctx, "escrow_finish", []interface{}{params}, nil)
}

// CancelEscrow returns an escrow to its owner.
func (c *Client) CancelEscrow(ctx context.Context, req bounty.EscrowCancelRequest) error {
	params := map[string]interface{}{
		"owner":         req.Owner,
		"offerSequence": req.Handle.OfferSequence,
	}
	return c.call(ctx, "escrow_cancel", []interface{}{params}, nil)
}

// FindEscrow looks up an existing escrow by its caller-supplied reference.
// Returns (nil, nil) when no escrow matches, so a create retry after a
// timeout cannot duplicate an escrow that actually went through.
func (c *Client) FindEscrow(ctx context.Context, source, reference string) (*bounty.EscrowHandle, error) {
	params := map[string]interface{}{
		"source":    source,
		"reference": reference,
	}
	var result escrowFindResult
	if err := c.call(ctx, "escrow_find", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	if !result.Found {
		return nil, nil
	}
	return &bounty.EscrowHandle{TxHash: result.TxHash, OfferSequence: result.OfferSequence}, nil
}

// Reserve returns the spendable reserve of a ledger account in drops.
func (c *Client) Reserve(ctx context.Context, address string) (*big.Int, error) {
	params := map[string]interface{}{"address": address}
	var result accountReserveResult
	if err := c.call(ctx, "account_reserve", []interface{}{params}, &result); err != nil {
		return nil, err
	}
	drops, ok := new(big.Int).SetString(strings.TrimSpace(result.Drops), 10)
	if !ok {
		return nil, &bounty.LedgerError{Op: "account_reserve", Code: "bad_reserve", Retryable: false,
			Err: fmt.Errorf("unparseable drops value %q", result.Drops)}
	}
	return drops, nil
}

func (c *Client) call(ctx context.Context, method string, params interface{}, out interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return c.fail(method, "cancelled", false, err)
	}
	start := time.Now()
	err := c.doCall(ctx, method, params, out)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	c.metrics.ObserveCall(method, outcome, time.Since(start))
	return err
}

func (c *Client) doCall(ctx context.Context, method string, params interface{}, out interface{}) error {
	payload := jsonRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      c.nextID.Add(1),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return c.fail(method, "encode", false, err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return c.fail(method, "request", false, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return c.fail(method, "network", isTimeout(err), err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.fail(method, "read", true, err)
	}
	if resp.StatusCode != http.StatusOK {
		retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return c.fail(method, fmt.Sprintf("http_%d", resp.StatusCode), retryable,
			fmt.Errorf("unexpected status %s", resp.Status))
	}
	var rpcResp jsonRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return c.fail(method, "decode", false, err)
	}
	if rpcResp.Error != nil {
		code := engineResultCode(rpcResp.Error)
		return c.fail(method, code, retryableEngineResult(code), errors.New(rpcResp.Error.Message))
	}
	if out != nil && len(rpcResp.Result) > 0 {
		if err := json.Unmarshal(rpcResp.Result, out); err != nil {
			return c.fail(method, "decode", false, err)
		}
	}
	return nil
}

// fail wraps a failure in the engine's LedgerError classification and feeds
// the metrics counters.
func (c *Client) fail(op, code string, retryable bool, err error) error {
	if retryable {
		c.metrics.ObserveRetry(op)
	} else {
		c.metrics.ObserveFailure(op, code)
	}
	return &bounty.LedgerError{Op: op, Code: code, Retryable: retryable, Err: err}
}

// engineResultCode extracts the transaction engine result (e.g.
// tecNO_PERMISSION) from an RPC error, falling back to the message prefix.
func engineResultCode(obj *jsonRPCErrorObj) string {
	if len(obj.Data) > 0 {
		var data struct {
			EngineResult string `json:"engineResult"`
		}
		if err := json.Unmarshal(obj.Data, &data); err == nil && data.EngineResult != "" {
			return data.EngineResult
		}
	}
	msg := strings.TrimSpace(obj.Message)
	if idx := strings.IndexAny(msg, ": "); idx > 0 {
		return msg[:idx]
	}
	if msg == "" {
		return fmt.Sprintf("rpc_%d", obj.Code)
	}
	return msg
}

// retryableEngineResult reports whether a transaction engine result class is
// worth retrying. tel (local) and ter (retry) results are tentative; tec, tem
// and tef results are final for this submission.
func retryableEngineResult(code string) bool {
	switch {
	case strings.HasPrefix(code, "tel"), strings.HasPrefix(code, "ter"):
		return true
	case strings.HasPrefix(code, "tec"), strings.HasPrefix(code, "tem"), strings.HasPrefix(code, "tef"):
		return false
	default:
		return false
	}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// RippleTime converts a wall-clock time into the ledger's seconds-since-2000
// representation.
func RippleTime(t time.Time) int64 {
	return t.Unix() - rippleEpochOffset
}
