package rpc

import (
	"net/http"
	"strings"
)

func (s *Server) handleGetBalance(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		PlayerID string `json:"playerId"`
	}
	if !params(w, req, &p) {
		return
	}
	b, err := s.node.GetBalance(p.PlayerID)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, b)
}

func (s *Server) handleGetEscrow(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID  string `json:"tableId"`
		PlayerID string `json:"playerId"`
	}
	if !params(w, req, &p) {
		return
	}
	if strings.TrimSpace(p.PlayerID) == "" {
		writeResult(w, req.ID, s.node.EscrowsByTable(p.TableID))
		return
	}
	e, err := s.node.GetEscrow(p.TableID, p.PlayerID)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, e)
}

func (s *Server) handleGetTable(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID string `json:"tableId"`
	}
	if !params(w, req, &p) {
		return
	}
	table, ok := s.node.GetTable(p.TableID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "table not found", p.TableID)
		return
	}
	writeResult(w, req.ID, table)
}

func (s *Server) handleListTables(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Tables())
}

// handleGetLedgerEntries serves the ledger's secondary indexes: exactly
// one of playerId, handId or tableId selects the slice.
func (s *Server) handleGetLedgerEntries(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		PlayerID string `json:"playerId"`
		HandID   string `json:"handId"`
		TableID  string `json:"tableId"`
	}
	if !params(w, req, &p) {
		return
	}
	switch {
	case p.PlayerID != "":
		writeResult(w, req.ID, s.node.LedgerEntriesByPlayer(p.PlayerID))
	case p.HandID != "":
		writeResult(w, req.ID, s.node.LedgerEntriesByHand(p.HandID))
	case p.TableID != "":
		writeResult(w, req.ID, s.node.LedgerEntriesByTable(p.TableID))
	default:
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "one of playerId, handId or tableId required", nil)
	}
}

func (s *Server) handleGetSettlement(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID string `json:"tableId"`
		HandID  string `json:"handId"`
	}
	if !params(w, req, &p) {
		return
	}
	if p.TableID == "" && p.HandID == "" {
		writeResult(w, req.ID, s.node.SettlementHistory())
		return
	}
	record, ok := s.node.GetSettlement(p.TableID, p.HandID)
	if !ok {
		writeError(w, http.StatusNotFound, req.ID, codeServerError, "settlement not found", nil)
		return
	}
	writeResult(w, req.ID, record)
}

func (s *Server) handleVerifyInvariants(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.VerifyInvariants())
}

func (s *Server) handleListTransactions(w http.ResponseWriter, req *RPCRequest) {
	writeResult(w, req.ID, s.node.Transactions())
}

func (s *Server) handleEventsSince(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		Cursor uint64 `json:"cursor"`
	}
	if !params(w, req, &p) {
		return
	}
	writeResult(w, req.ID, s.node.EventsSince(p.Cursor))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, req *RPCRequest) {
	snap, err := s.node.CreateSnapshot()
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]any{
		"snapshotId": snap.SnapshotID,
		"version":    snap.Version,
		"timestamp":  snap.Timestamp,
		"checksum":   snap.Checksum,
	})
}

func (s *Server) handleRecover(w http.ResponseWriter, req *RPCRequest) {
	report, err := s.node.RecoverLatest()
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, report)
}
