package rpc

import (
	"net/http"

	"cardroom/core/types"
	"cardroom/native/settlement"
	"cardroom/native/sidepot"
)

func toPlayerState(ps settlementPlayerState) sidepot.PlayerState {
	return sidepot.PlayerState{
		PlayerID:          ps.PlayerID,
		TotalContribution: ps.TotalContribution,
		IsAllIn:           ps.IsAllIn,
		IsFolded:          ps.IsFolded,
	}
}

func (s *Server) handlePostBetAction(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID  string      `json:"tableId"`
		PlayerID string      `json:"playerId"`
		Amount   types.Chips `json:"amount"`
		Street   string      `json:"street"`
		IsBlind  bool        `json:"isBlind"`
	}
	if !params(w, req, &p) {
		return
	}
	street, err := types.ParseStreet(p.Street)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), p.Street)
		return
	}
	if err := s.node.PostBetAction(p.TableID, p.PlayerID, p.Amount, street, p.IsBlind); err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"posted": true})
}

func (s *Server) handlePlayerFolded(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID  string `json:"tableId"`
		PlayerID string `json:"playerId"`
	}
	if !params(w, req, &p) {
		return
	}
	if err := s.node.PlayerFolded(p.TableID, p.PlayerID); err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"folded": true})
}

// settlementRequest mirrors settlement.Request with the street carried
// by wire name.
type settlementRequest struct {
	TableID           string                  `json:"tableId"`
	PlayerStates      []settlementPlayerState `json:"playerStates"`
	WinnerRankings    map[string]int          `json:"winnerRankings"`
	FinalStreet       string                  `json:"finalStreet"`
	FlopSeen          bool                    `json:"flopSeen"`
	IsUncontested     bool                    `json:"isUncontested"`
	PlayersInHand     int                     `json:"playersInHand"`
	PlayersAtShowdown int                     `json:"playersAtShowdown"`
}

type settlementPlayerState struct {
	PlayerID          string      `json:"playerId"`
	TotalContribution types.Chips `json:"totalContribution"`
	IsAllIn           bool        `json:"isAllIn"`
	IsFolded          bool        `json:"isFolded"`
}

func (r settlementRequest) toRequest(w http.ResponseWriter, id any) (settlement.Request, bool) {
	street, err := types.ParseStreet(r.FinalStreet)
	if err != nil {
		writeError(w, http.StatusBadRequest, id, codeInvalidParams, err.Error(), r.FinalStreet)
		return settlement.Request{}, false
	}
	out := settlement.Request{
		TableID:           r.TableID,
		WinnerRankings:    r.WinnerRankings,
		FinalStreet:       street,
		FlopSeen:          r.FlopSeen,
		IsUncontested:     r.IsUncontested,
		PlayersInHand:     r.PlayersInHand,
		PlayersAtShowdown: r.PlayersAtShowdown,
	}
	for _, ps := range r.PlayerStates {
		out.PlayerStates = append(out.PlayerStates, toPlayerState(ps))
	}
	return out, true
}

func (s *Server) handleEndHand(w http.ResponseWriter, req *RPCRequest) {
	var p settlementRequest
	if !params(w, req, &p) {
		return
	}
	request, ok := p.toRequest(w, req.ID)
	if !ok {
		return
	}
	outcome, err := s.node.EndHand(p.TableID, request)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, outcome)
}

func (s *Server) handleEndHandUncontested(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		TableID     string `json:"tableId"`
		WinnerID    string `json:"winnerId"`
		FinalStreet string `json:"finalStreet"`
		FlopSeen    bool   `json:"flopSeen"`
	}
	if !params(w, req, &p) {
		return
	}
	street, err := types.ParseStreet(p.FinalStreet)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), p.FinalStreet)
		return
	}
	outcome, err := s.node.EndHandUncontested(p.TableID, p.WinnerID, street, p.FlopSeen)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, outcome)
}

func (s *Server) handlePreviewSettlement(w http.ResponseWriter, req *RPCRequest) {
	var p settlementRequest
	if !params(w, req, &p) {
		return
	}
	request, ok := p.toRequest(w, req.ID)
	if !ok {
		return
	}
	preview, err := s.node.PreviewSettlement(request)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, preview)
}

func (s *Server) handleInitializePlayer(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		PlayerID string      `json:"playerId"`
		Initial  types.Chips `json:"initial"`
	}
	if !params(w, req, &p) {
		return
	}
	b, err := s.node.InitializePlayer(p.PlayerID, p.Initial)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, b)
}

func (s *Server) handleDeposit(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		PlayerID string      `json:"playerId"`
		Amount   types.Chips `json:"amount"`
	}
	if !params(w, req, &p) {
		return
	}
	b, err := s.node.Deposit(p.PlayerID, p.Amount)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, b)
}

func (s *Server) handleWithdraw(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		PlayerID string      `json:"playerId"`
		Amount   types.Chips `json:"amount"`
	}
	if !params(w, req, &p) {
		return
	}
	b, err := s.node.Withdraw(p.PlayerID, p.Amount)
	if err != nil {
		writeEconomyError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, b)
}
