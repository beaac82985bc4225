package main

import (
	"fmt"
	"log/slog"
	"strings"

	"cardroom/config"
	"cardroom/core"
	"cardroom/core/types"
	"cardroom/native/authority"
	"cardroom/native/rake"
)

// applyBootstrap seeds an empty economy from the YAML file: player
// balances first, then clubs with their memberships and tables. Any
// denial aborts the start so a bad seed never half-applies silently.
func applyBootstrap(node *core.Node, cfg *config.Config, seed *config.Bootstrap, logger *slog.Logger) error {
	for _, player := range seed.Players {
		if _, err := node.InitializePlayer(player.ID, types.Chips(player.Balance)); err != nil {
			return fmt.Errorf("seed player %s: %w", player.ID, err)
		}
	}

	for i, club := range seed.Clubs {
		clubCfg := clubConfigFor(club)
		policy := rake.Config{
			PolicyID:          fmt.Sprintf("pol_seed_%d", i+1),
			DefaultPercentage: int64(club.RakePercentage),
			DefaultCap:        types.Chips(club.RakeCap),
		}
		if policy.DefaultPercentage == 0 {
			policy.DefaultPercentage = int64(cfg.Rake.DefaultPercentage)
			policy.DefaultCap = types.Chips(cfg.Rake.DefaultCap)
		}
		resp, err := node.CreateClub(club.OwnerID, club.Name, clubCfg, policy)
		if err != nil {
			return fmt.Errorf("seed club %s: %w", club.Name, err)
		}
		if !resp.Success {
			return fmt.Errorf("seed club %s: %s", club.Name, resp.Error)
		}
		created, ok := resp.Data.(*authority.Club)
		if !ok {
			return fmt.Errorf("seed club %s: unexpected response payload", club.Name)
		}

		for _, member := range club.Members {
			if member.PlayerID == club.OwnerID {
				continue
			}
			if err := seedMember(node, created.ClubID, club.OwnerID, member); err != nil {
				return fmt.Errorf("seed club %s member %s: %w", club.Name, member.PlayerID, err)
			}
		}

		for _, table := range club.Tables {
			resp, err := node.CreateTable(created.ClubID, club.OwnerID, table.Name)
			if err != nil {
				return fmt.Errorf("seed table %s: %w", table.Name, err)
			}
			if !resp.Success {
				return fmt.Errorf("seed table %s: %s", table.Name, resp.Error)
			}
		}
		logger.Info("seeded club",
			"clubId", created.ClubID,
			"name", club.Name,
			"members", len(club.Members),
			"tables", len(club.Tables),
		)
	}
	return nil
}

func seedMember(node *core.Node, clubID, ownerID string, member config.BootstrapMember) error {
	resp, err := node.InviteMember(clubID, ownerID, member.PlayerID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("invite: %s", resp.Error)
	}
	resp, err = node.AcceptInvitation(clubID, member.PlayerID)
	if err != nil {
		return err
	}
	if !resp.Success {
		return fmt.Errorf("accept: %s", resp.Error)
	}
	if strings.EqualFold(strings.TrimSpace(member.Role), "MANAGER") {
		resp, err = node.PromoteToManager(clubID, ownerID, member.PlayerID)
		if err != nil {
			return err
		}
		if !resp.Success {
			return fmt.Errorf("promote: %s", resp.Error)
		}
	}
	return nil
}

// clubConfigFor derives the club's table limits from its first seeded
// table; a club without tables gets permissive defaults.
func clubConfigFor(club config.BootstrapClub) authority.ClubConfig {
	cfg := authority.ClubConfig{
		MinBuyIn:          100,
		MaxBuyIn:          0,
		MaxSeats:          9,
		MinPlayersToStart: 2,
		AllowRebuy:        true,
		AllowTopUp:        true,
	}
	if len(club.Tables) > 0 {
		first := club.Tables[0]
		cfg.MinBuyIn = types.Chips(first.MinBuyIn)
		cfg.MaxBuyIn = types.Chips(first.MaxBuyIn)
		if first.MaxSeats > 1 {
			cfg.MaxSeats = first.MaxSeats
		}
		if first.MinPlayers > 1 {
			cfg.MinPlayersToStart = first.MinPlayers
		}
	}
	return cfg
}
