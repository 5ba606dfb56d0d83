// Package rpc exposes the bounty engine's inbound operations as a JSON-RPC
// 2.0 endpoint. The surface stays a thin shim over the engine: no sessions,
// no rendering, no wallet conveniences.
package rpc

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"bountyx/native/bounty"
	"bountyx/storage/bountydb"
)

// JSON-RPC error codes for the engine's error taxonomy.
const (
	codeInternal           = -32000
	codeInvalidRequest     = -32600
	codeMethodNotFound     = -32601
	codeInvalidParams      = -32602
	codeNotFound           = -32004
	codeForbidden          = -32003
	codeInvalidState       = -32010
	codeInsufficientFunds  = -32011
	codeClaimRejected      = -32012
	codePartialFailure     = -32013
	codeConcurrentModified = -32014
)

// StatsProvider reads per-address funding and earning aggregates.
type StatsProvider interface {
	Stats(address string) (*bountydb.UserStats, error)
}

// Server routes JSON-RPC requests to the bounty engine.
type Server struct {
	engine *bounty.Engine
	stats  StatsProvider
	log    *slog.Logger
}

// NewServer builds the RPC handler.
func NewServer(engine *bounty.Engine, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{engine: engine, log: log}
}

// SetStats enables the bounty_userStats method.
func (s *Server) SetStats(stats StatsProvider) { s.stats = stats }

type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	ID      json.RawMessage `json:"id"`
}

type rpcError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

// ServeHTTP implements http.Handler for the single RPC endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeResponse(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "unreadable request"}})
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeResponse(w, rpcResponse{JSONRPC: "2.0", Error: &rpcError{Code: codeInvalidRequest, Message: "malformed request"}})
		return
	}

	start := time.Now()
	result, rpcErr := s.dispatch(r, &req)
	if rpcErr != nil {
		s.log.Warn("rpc call failed",
			"method", req.Method,
			"code", rpcErr.Code,
			"message", rpcErr.Message,
			"elapsed", time.Since(start).String(),
		)
		writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Error: rpcErr})
		return
	}
	s.log.Info("rpc call", "method", req.Method, "elapsed", time.Since(start).String())
	writeResponse(w, rpcResponse{JSONRPC: "2.0", ID: req.ID, Result: result})
}

func (s *Server) dispatch(r *http.Request, req *rpcRequest) (interface{}, *rpcError) {
	switch req.Method {
	case "bounty_create":
		return s.handleCreate(r, req.Params)
	case "bounty_boost":
		return s.handleBoost(r, req.Params)
	case "bounty_accept":
		return s.handleAccept(r, req.Params)
	case "bounty_claim":
		return s.handleClaim(r, req.Params)
	case "bounty_cancel":
		return s.handleCancel(r, req.Params)
	case "bounty_get":
		return s.handleGet(req.Params)
	case "bounty_contributions":
		return s.handleContributions(req.Params)
	case "bounty_developerSecret":
		return s.handleDeveloperSecret(req.Params)
	case "bounty_userStats":
		return s.handleUserStats(req.Params)
	default:
		return nil, &rpcError{Code: codeMethodNotFound, Message: "unknown method " + req.Method}
	}
}

func writeResponse(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func decodeParams(raw json.RawMessage, out interface{}) *rpcError {
	if len(raw) == 0 {
		return &rpcError{Code: codeInvalidParams, Message: "missing params"}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err != nil || len(list) != 1 {
		return &rpcError{Code: codeInvalidParams, Message: "params must be a single object"}
	}
	if err := json.Unmarshal(list[0], out); err != nil {
		return &rpcError{Code: codeInvalidParams, Message: "malformed params: " + err.Error()}
	}
	return nil
}

func parseDrops(raw string) (*big.Int, *rpcError) {
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok {
		return nil, &rpcError{Code: codeInvalidParams, Message: "amount must be a decimal drops string"}
	}
	return amount, nil
}

// errorToRPC maps the engine taxonomy onto JSON-RPC error codes.
func errorToRPC(err error) *rpcError {
	var (
		validation  *bounty.ValidationError
		state       *bounty.InvalidStateError
		reserve     *bounty.InsufficientReserveError
		claim       *bounty.ClaimVerificationError
		partial     *bounty.PartialFailureError
		ledgerError *bounty.LedgerError
	)
	switch {
	case errors.As(err, &validation):
		return &rpcError{Code: codeInvalidParams, Message: validation.Error()}
	case errors.As(err, &state):
		return &rpcError{Code: codeInvalidState, Message: state.Error()}
	case errors.As(err, &reserve):
		return &rpcError{Code: codeInsufficientFunds, Message: reserve.Error()}
	case errors.As(err, &claim):
		return &rpcError{Code: codeClaimRejected, Message: claim.Error(), Data: map[string]string{"reason": claim.Reason}}
	case errors.As(err, &partial):
		return &rpcError{Code: codePartialFailure, Message: partial.Error(), Data: partialFailureData(partial)}
	case errors.Is(err, bounty.ErrBountyNotFound):
		return &rpcError{Code: codeNotFound, Message: err.Error()}
	case errors.Is(err, bounty.ErrForbidden):
		return &rpcError{Code: codeForbidden, Message: err.Error()}
	case errors.Is(err, bounty.ErrConcurrentModification):
		return &rpcError{Code: codeConcurrentModified, Message: err.Error()}
	case errors.As(err, &ledgerError):
		return &rpcError{Code: codeInternal, Message: ledgerError.Error()}
	default:
		return &rpcError{Code: codeInternal, Message: err.Error()}
	}
}

func partialFailureData(err *bounty.PartialFailureError) map[string]interface{} {
	succeeded := make([]string, 0, len(err.Succeeded))
	for _, out := range err.Succeeded {
		succeeded = append(succeeded, out.ContributionID.String())
	}
	failed := make([]map[string]string, 0, len(err.Failed))
	for _, out := range err.Failed {
		entry := map[string]string{"contributionId": out.ContributionID.String()}
		if out.Err != nil {
			entry["error"] = out.Err.Error()
		}
		failed = append(failed, entry)
	}
	return map[string]interface{}{
		"op":        err.Op,
		"bountyId":  err.BountyID,
		"succeeded": succeeded,
		"failed":    failed,
	}
}
