// Package rpc exposes the economy core's Authority API as JSON-RPC 2.0
// over HTTP, plus a WebSocket stream of authority events. The server
// is a thin translation layer: every method maps onto exactly one Node
// operation and carries the authority's uniform response envelope.
package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"cardroom/core"
	"cardroom/core/types"
	"cardroom/observability"
	"cardroom/observability/logging"
)

const (
	jsonRPCVersion         = "2.0"
	defaultMaxRequestBytes = 1 << 20 // 1 MiB
)

const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeServerError    = -32000
	codeUnauthorized   = -32001
	codeRateLimited    = -32020
	codeHalted         = -32030
)

// Config tunes authentication and throttling for the server.
type Config struct {
	// AuthToken is a static bearer token gating mutations. Empty
	// disables token auth.
	AuthToken string
	// JWTSecret enables HS256 operator tokens instead of a static
	// token. Mutually exclusive with AuthToken.
	JWTSecret string
	// RateLimitPerSecond and RateBurst bound per-client request rates.
	RateLimitPerSecond int
	RateBurst          int
	// MaxBodyBytes caps the request body size. Zero uses the default.
	MaxBodyBytes int64
}

// Server serves the Authority API.
type Server struct {
	node   *core.Node
	cfg    Config
	logger *slog.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// NewServer builds a server over the node. A nil logger falls back to
// slog.Default.
func NewServer(node *core.Node, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = defaultMaxRequestBytes
	}
	if cfg.RateLimitPerSecond <= 0 {
		cfg.RateLimitPerSecond = 50
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = cfg.RateLimitPerSecond * 2
	}
	return &Server{
		node:     node,
		cfg:      cfg,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

// Handler returns the HTTP handler serving the JSON-RPC endpoint and
// the event stream.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handle)
	mux.HandleFunc("/ws/events", s.handleEventsWS)
	return mux
}

// Start serves on addr until the listener fails.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("json-rpc server listening", "addr", addr)
	return srv.ListenAndServe()
}

// RPCRequest is the JSON-RPC request envelope. Params carries at most
// one object per method.
type RPCRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      any               `json:"id"`
}

// RPCResponse is the JSON-RPC response envelope.
type RPCResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

// RPCError is the JSON-RPC error object.
type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func writeError(w http.ResponseWriter, status int, id any, code int, message string, data any) {
	if status <= 0 {
		status = http.StatusBadRequest
	}
	if status != http.StatusOK {
		w.WriteHeader(status)
	}
	errObj := &RPCError{Code: code, Message: message}
	if data != nil {
		errObj.Data = data
	}
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Error: errObj})
}

func writeResult(w http.ResponseWriter, id any, result any) {
	_ = json.NewEncoder(w).Encode(RPCResponse{JSONRPC: jsonRPCVersion, ID: id, Result: result})
}

// writeEconomyError maps a Node failure onto the JSON-RPC error space.
// Structured economy errors keep their code and details in the data
// field so clients can match on them.
func writeEconomyError(w http.ResponseWriter, id any, err error) {
	var econ *types.EconomyError
	if errors.As(err, &econ) {
		status := http.StatusBadRequest
		code := codeInvalidParams
		switch econ.Class {
		case types.ClassValidation:
			status, code = http.StatusBadRequest, codeInvalidParams
		case types.ClassPrecondition, types.ClassIdempotency, types.ClassAuthorization, types.ClassTimeout:
			status, code = http.StatusUnprocessableEntity, codeServerError
		case types.ClassFatal:
			status, code = http.StatusServiceUnavailable, codeHalted
		}
		writeError(w, status, id, code, econ.Message, econ)
		return
	}
	writeError(w, http.StatusInternalServerError, id, codeServerError, err.Error(), nil)
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
	method := s.dispatch(sw, r)
	observability.ModuleMetrics().Observe("rpc", method, sw.status, time.Since(start))
}

// dispatch runs the request and returns the method name for metrics;
// it is empty when the envelope never parsed.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request) string {
	reader := http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	defer func() { _ = reader.Close() }()
	w.Header().Set("Content-Type", "application/json")

	source := clientSource(r)
	if !s.allowSource(source) {
		observability.ModuleMetrics().RecordThrottle("rpc", "rate_limit")
		writeError(w, http.StatusTooManyRequests, nil, codeRateLimited, "request rate limit exceeded", source)
		return ""
	}

	body, err := io.ReadAll(reader)
	if err != nil {
		status := http.StatusBadRequest
		message := "failed to read request body"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			status = http.StatusRequestEntityTooLarge
			message = fmt.Sprintf("request body exceeds %d bytes", s.cfg.MaxBodyBytes)
		}
		writeError(w, status, nil, codeInvalidRequest, message, err.Error())
		return ""
	}
	if len(bytes.TrimSpace(body)) == 0 {
		writeError(w, http.StatusBadRequest, nil, codeInvalidRequest, "request body required", nil)
		return ""
	}

	req := &RPCRequest{}
	if err := json.Unmarshal(body, req); err != nil {
		writeError(w, http.StatusBadRequest, nil, codeParseError, "invalid JSON payload", err.Error())
		return ""
	}
	if req.JSONRPC != "" && req.JSONRPC != jsonRPCVersion {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "unsupported jsonrpc version", req.JSONRPC)
		return req.Method
	}
	if req.Method == "" {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "method required", nil)
		return ""
	}

	handler, ok := s.methods()[req.Method]
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeMethodNotFound, "unknown method", req.Method)
		return req.Method
	}
	if handler.mutates {
		if authErr := s.requireAuth(r); authErr != nil {
			s.logger.Warn("rejected rpc credentials",
				"method", req.Method,
				"source", source,
				logging.MaskField("token", bearerToken(r)),
			)
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return req.Method
		}
	}
	handler.fn(w, req)
	return req.Method
}

// statusWriter records the status code written to the response so the
// dispatch path can report it to metrics.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

type methodHandler struct {
	fn      func(http.ResponseWriter, *RPCRequest)
	mutates bool
}

// methods is the full dispatch table: the Authority API action set,
// the hand-engine surface, queries and the operator snapshot calls.
func (s *Server) methods() map[string]methodHandler {
	return map[string]methodHandler{
		// Club administration.
		"cardroom_createClub":        {s.handleCreateClub, true},
		"cardroom_updateClubConfig":  {s.handleUpdateClubConfig, true},
		"cardroom_updateRakePolicy":  {s.handleUpdateRakePolicy, true},
		"cardroom_deleteClub":        {s.handleDeleteClub, true},
		"cardroom_inviteMember":      {s.handleInviteMember, true},
		"cardroom_acceptInvitation":  {s.handleAcceptInvitation, true},
		"cardroom_removeMember":      {s.handleRemoveMember, true},
		"cardroom_banMember":         {s.handleBanMember, true},
		"cardroom_unbanMember":       {s.handleUnbanMember, true},
		"cardroom_promoteToManager":  {s.handlePromoteToManager, true},
		"cardroom_demoteFromManager": {s.handleDemoteFromManager, true},
		"cardroom_transferOwnership": {s.handleTransferOwnership, true},

		// Table lifecycle and seats.
		"cardroom_createTable": {s.handleCreateTable, true},
		"cardroom_closeTable":  {s.handleCloseTable, true},
		"cardroom_pauseTable":  {s.handlePauseTable, true},
		"cardroom_resumeTable": {s.handleResumeTable, true},
		"cardroom_joinTable":   {s.handleJoinTable, true},
		"cardroom_leaveTable":  {s.handleLeaveTable, true},
		"cardroom_buyIn":       {s.handleBuyIn, true},
		"cardroom_cashOut":     {s.handleCashOut, true},
		"cardroom_rebuy":       {s.handleRebuy, true},
		"cardroom_topUp":       {s.handleTopUp, true},
		"cardroom_kickPlayer":  {s.handleKickPlayer, true},
		"cardroom_startHand":   {s.handleStartHand, true},
		"cardroom_forceAction": {s.handleForceAction, true},

		// Hand-engine surface.
		"cardroom_postBetAction":      {s.handlePostBetAction, true},
		"cardroom_playerFolded":       {s.handlePlayerFolded, true},
		"cardroom_endHand":            {s.handleEndHand, true},
		"cardroom_endHandUncontested": {s.handleEndHandUncontested, true},
		"cardroom_previewSettlement":  {s.handlePreviewSettlement, false},

		// Player funds.
		"cardroom_initializePlayer": {s.handleInitializePlayer, true},
		"cardroom_deposit":          {s.handleDeposit, true},
		"cardroom_withdraw":         {s.handleWithdraw, true},

		// Queries.
		"cardroom_getBalance":        {s.handleGetBalance, false},
		"cardroom_getEscrow":         {s.handleGetEscrow, false},
		"cardroom_getTable":          {s.handleGetTable, false},
		"cardroom_listTables":        {s.handleListTables, false},
		"cardroom_getLedgerEntries":  {s.handleGetLedgerEntries, false},
		"cardroom_getSettlement":     {s.handleGetSettlement, false},
		"cardroom_verifyInvariants":  {s.handleVerifyInvariants, false},
		"cardroom_listTransactions":  {s.handleListTransactions, false},
		"cardroom_eventsSince":       {s.handleEventsSince, false},

		// Operator surface.
		"economy_snapshot": {s.handleSnapshot, true},
		"economy_recover":  {s.handleRecover, true},
	}
}

func (s *Server) allowSource(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	limiter, ok := s.limiters[source]
	if !ok {
		limiter = rate.NewLimiter(rate.Limit(s.cfg.RateLimitPerSecond), s.cfg.RateBurst)
		s.limiters[source] = limiter
	}
	return limiter.Allow()
}

func clientSource(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if candidate := strings.TrimSpace(parts[0]); candidate != "" {
			return candidate
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// params unmarshals the single object parameter every method takes.
func params(w http.ResponseWriter, req *RPCRequest, dst any) bool {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "parameter object required", nil)
		return false
	}
	if err := json.Unmarshal(req.Params[0], dst); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid parameter object", err.Error())
		return false
	}
	return true
}
