package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nhooyr.io/websocket"

	"cardroom/core"
	"cardroom/core/types"
	"cardroom/native/authority"
)

const testToken = "local-test-token"

func newTestServer(t *testing.T) *Server {
	t.Helper()
	node := core.NewNode(core.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	return NewServer(node, Config{AuthToken: testToken}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

type rpcEnvelope struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

func call(t *testing.T, s *Server, token, method string, params any) (int, rpcEnvelope) {
	t.Helper()
	body := map[string]any{"jsonrpc": jsonRPCVersion, "id": 1, "method": method}
	if params != nil {
		body["params"] = []any{params}
	}
	payload, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(payload))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	var envelope rpcEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &envelope); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec.Code, envelope
}

func mustResult(t *testing.T, s *Server, token, method string, params, dst any) {
	t.Helper()
	status, envelope := call(t, s, token, method, params)
	if envelope.Error != nil {
		t.Fatalf("%s failed (%d): %s", method, status, envelope.Error.Message)
	}
	if dst != nil {
		if err := json.Unmarshal(envelope.Result, dst); err != nil {
			t.Fatalf("%s: decode result: %v", method, err)
		}
	}
}

func seedClub(t *testing.T, s *Server) (clubID, tableID string) {
	t.Helper()
	var resp struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	mustResult(t, s, testToken, "cardroom_createClub", map[string]any{
		"callerId": "plr_owner",
		"name":     "Main Street",
		"config": authority.ClubConfig{
			MinBuyIn: 100, MaxBuyIn: 1000, MaxSeats: 6, MinPlayersToStart: 2,
			AllowRebuy: true, AllowTopUp: true,
		},
		"rakePolicy": map[string]any{"policyId": "pol_main", "defaultPercentage": 5},
	}, &resp)
	if !resp.Success {
		t.Fatalf("create club denied: %s", resp.Error)
	}
	var club authority.Club
	if err := json.Unmarshal(resp.Data, &club); err != nil {
		t.Fatalf("decode club: %v", err)
	}
	mustResult(t, s, testToken, "cardroom_createTable", map[string]any{
		"clubId": club.ClubID, "callerId": "plr_owner", "name": "Table One",
	}, &resp)
	if !resp.Success {
		t.Fatalf("create table denied: %s", resp.Error)
	}
	var table authority.Table
	if err := json.Unmarshal(resp.Data, &table); err != nil {
		t.Fatalf("decode table: %v", err)
	}
	return club.ClubID, table.TableID
}

func TestServerDispatchAndQueries(t *testing.T) {
	s := newTestServer(t)
	clubID, tableID := seedClub(t, s)

	var bal struct {
		PlayerID  string      `json:"playerId"`
		Available types.Chips `json:"available"`
	}
	mustResult(t, s, testToken, "cardroom_initializePlayer", map[string]any{
		"playerId": "plr_a", "initial": 2000,
	}, &bal)
	if bal.Available != 2000 {
		t.Fatalf("available = %d, want 2000", bal.Available)
	}

	mustResult(t, s, "", "cardroom_getBalance", map[string]any{"playerId": "plr_a"}, &bal)
	if bal.PlayerID != "plr_a" || bal.Available != 2000 {
		t.Fatalf("query balance = %+v", bal)
	}

	var table authority.Table
	mustResult(t, s, "", "cardroom_getTable", map[string]any{"tableId": tableID}, &table)
	if table.ClubID != clubID {
		t.Fatalf("table club = %q, want %q", table.ClubID, clubID)
	}

	var tables []*authority.Table
	mustResult(t, s, "", "cardroom_listTables", map[string]any{}, &tables)
	if len(tables) != 1 {
		t.Fatalf("tables = %d, want 1", len(tables))
	}
}

func TestServerAuthRequiredForMutations(t *testing.T) {
	s := newTestServer(t)

	status, envelope := call(t, s, "", "cardroom_initializePlayer", map[string]any{"playerId": "plr_a", "initial": 100})
	if status != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", status)
	}
	if envelope.Error == nil || envelope.Error.Code != codeUnauthorized {
		t.Fatalf("error = %+v, want code %d", envelope.Error, codeUnauthorized)
	}

	status, envelope = call(t, s, "wrong-token", "cardroom_initializePlayer", map[string]any{"playerId": "plr_a", "initial": 100})
	if status != http.StatusUnauthorized || envelope.Error == nil {
		t.Fatalf("wrong token accepted: status=%d error=%+v", status, envelope.Error)
	}

	// Queries stay open.
	status, envelope = call(t, s, "", "cardroom_listTables", map[string]any{})
	if status != http.StatusOK || envelope.Error != nil {
		t.Fatalf("open query rejected: status=%d error=%+v", status, envelope.Error)
	}
}

func TestServerUnknownMethodAndBadParams(t *testing.T) {
	s := newTestServer(t)

	status, envelope := call(t, s, "", "cardroom_noSuchMethod", map[string]any{})
	if status != http.StatusNotFound || envelope.Error == nil || envelope.Error.Code != codeMethodNotFound {
		t.Fatalf("unknown method: status=%d error=%+v", status, envelope.Error)
	}

	status, envelope = call(t, s, "", "cardroom_getBalance", nil)
	if status != http.StatusBadRequest || envelope.Error == nil || envelope.Error.Code != codeInvalidParams {
		t.Fatalf("missing params: status=%d error=%+v", status, envelope.Error)
	}
}

func TestServerEconomyErrorMapping(t *testing.T) {
	s := newTestServer(t)

	status, envelope := call(t, s, testToken, "cardroom_withdraw", map[string]any{"playerId": "plr_ghost", "amount": 50})
	if envelope.Error == nil {
		t.Fatalf("withdraw from unknown player succeeded")
	}
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", status)
	}
	if envelope.Error.Data == nil {
		t.Fatalf("economy error detail missing: %+v", envelope.Error)
	}
}

func TestServerDenialIsResultNotError(t *testing.T) {
	s := newTestServer(t)
	clubID, tableID := seedClub(t, s)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	mustResult(t, s, testToken, "cardroom_joinTable", map[string]any{
		"clubId": clubID, "callerId": "plr_stranger", "tableId": tableID,
	}, &resp)
	if resp.Success {
		t.Fatalf("non-member allowed to join table")
	}
	if resp.Error == "" {
		t.Fatalf("denial carries no reason")
	}
}

func TestServerRateLimit(t *testing.T) {
	node := core.NewNode(core.Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))})
	s := NewServer(node, Config{RateLimitPerSecond: 1, RateBurst: 1}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	status, _ := call(t, s, "", "cardroom_listTables", map[string]any{})
	if status != http.StatusOK {
		t.Fatalf("first request: status = %d", status)
	}
	status, envelope := call(t, s, "", "cardroom_listTables", map[string]any{})
	if status != http.StatusTooManyRequests || envelope.Error == nil || envelope.Error.Code != codeRateLimited {
		t.Fatalf("second request: status=%d error=%+v", status, envelope.Error)
	}
}

func TestEventStreamBacklog(t *testing.T) {
	s := newTestServer(t)
	seedClub(t, s)

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws"+srv.URL[len("http"):]+"/ws/events?cursor=0", nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var evt authority.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		t.Fatalf("decode event %q: %v", data, err)
	}
	if evt.Type == "" {
		t.Fatalf("event missing type: %+v", evt)
	}
}
