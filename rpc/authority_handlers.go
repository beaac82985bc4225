package rpc

import (
	"net/http"

	"cardroom/core/types"
	"cardroom/native/authority"
	"cardroom/native/rake"
)

// clubParams covers every club-scoped action: the caller, the club and
// an optional target member.
type clubParams struct {
	ClubID   string `json:"clubId"`
	CallerID string `json:"callerId"`
	TargetID string `json:"targetId"`
}

// tableParams covers table-scoped actions.
type tableParams struct {
	ClubID   string      `json:"clubId"`
	CallerID string      `json:"callerId"`
	TableID  string      `json:"tableId"`
	TargetID string      `json:"targetId"`
	Amount   types.Chips `json:"amount"`
	Name     string      `json:"name"`
	Forced   string      `json:"forced"`
}

// writeAuthorityResponse writes the uniform authority envelope. Denials
// are results, not transport errors; the envelope carries the denial
// reason. A non-nil err means the node refused to run the action at
// all (halt latch).
func writeAuthorityResponse(w http.ResponseWriter, id any, resp *authority.Response, err error) {
	if err != nil {
		writeEconomyError(w, id, err)
		return
	}
	writeResult(w, id, resp)
}

func (s *Server) handleCreateClub(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		CallerID string               `json:"callerId"`
		Name     string               `json:"name"`
		Config   authority.ClubConfig `json:"config"`
		Policy   rake.Config          `json:"rakePolicy"`
	}
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.CreateClub(p.CallerID, p.Name, p.Config, p.Policy)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleUpdateClubConfig(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		ClubID   string               `json:"clubId"`
		CallerID string               `json:"callerId"`
		Config   authority.ClubConfig `json:"config"`
	}
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.UpdateClubConfig(p.ClubID, p.CallerID, p.Config)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleUpdateRakePolicy(w http.ResponseWriter, req *RPCRequest) {
	var p struct {
		ClubID   string      `json:"clubId"`
		CallerID string      `json:"callerId"`
		Policy   rake.Config `json:"rakePolicy"`
	}
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.UpdateRakePolicy(p.ClubID, p.CallerID, p.Policy)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleDeleteClub(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.DeleteClub(p.ClubID, p.CallerID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleInviteMember(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.InviteMember(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleAcceptInvitation(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.AcceptInvitation(p.ClubID, p.CallerID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleRemoveMember(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.RemoveMember(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleBanMember(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.BanMember(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleUnbanMember(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.UnbanMember(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handlePromoteToManager(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.PromoteToManager(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleDemoteFromManager(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.DemoteFromManager(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleTransferOwnership(w http.ResponseWriter, req *RPCRequest) {
	var p clubParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.TransferOwnership(p.ClubID, p.CallerID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleCreateTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.CreateTable(p.ClubID, p.CallerID, p.Name)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleCloseTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.CloseTable(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handlePauseTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.PauseTable(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleResumeTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.ResumeTable(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleJoinTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.JoinTable(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleLeaveTable(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.LeaveTable(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleBuyIn(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.BuyIn(p.ClubID, p.CallerID, p.TableID, p.Amount)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleCashOut(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.CashOut(p.ClubID, p.CallerID, p.TableID, p.Amount)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleRebuy(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.Rebuy(p.ClubID, p.CallerID, p.TableID, p.Amount)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleTopUp(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.TopUp(p.ClubID, p.CallerID, p.TableID, p.Amount)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleKickPlayer(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.KickPlayer(p.ClubID, p.CallerID, p.TableID, p.TargetID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleStartHand(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.StartHand(p.ClubID, p.CallerID, p.TableID)
	writeAuthorityResponse(w, req.ID, resp, err)
}

func (s *Server) handleForceAction(w http.ResponseWriter, req *RPCRequest) {
	var p tableParams
	if !params(w, req, &p) {
		return
	}
	resp, err := s.node.ForceAction(p.ClubID, p.CallerID, p.TableID, p.TargetID, p.Forced)
	writeAuthorityResponse(w, req.ID, resp, err)
}
