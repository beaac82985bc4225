// Package snapshot captures and restores the economy's monetary state:
// balances, escrows and settlement history, checksummed so a restart
// can prove it is resuming from an uncorrupted image.
package snapshot

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"sort"

	"lukechampine.com/blake3"

	"cardroom/core/types"
	"cardroom/native/balance"
	"cardroom/native/escrow"
	"cardroom/native/ledger"
)

// EconomySnapshot is one coherent image of the economy. Sections are
// stored sorted so the canonical serialization, and therefore the
// checksum, never depends on map iteration order.
type EconomySnapshot struct {
	SnapshotID        string                     `json:"snapshotId"`
	Version           uint64                     `json:"version"`
	Timestamp         int64                      `json:"timestamp"`
	Balances          []*balance.PlayerBalance   `json:"balances"`
	Escrows           []*escrow.TableEscrow      `json:"escrows"`
	SettlementHistory []*ledger.SettlementRecord `json:"settlementHistory"`
	// PendingTxns counts transactions that were in flight at capture.
	// They are treated as rolled back on recovery.
	PendingTxns int    `json:"pendingTxns"`
	Checksum    string `json:"checksum"`
}

// Clone returns a deep copy of the snapshot.
func (s *EconomySnapshot) Clone() *EconomySnapshot {
	if s == nil {
		return nil
	}
	clone := *s
	clone.Balances = make([]*balance.PlayerBalance, len(s.Balances))
	for i, b := range s.Balances {
		clone.Balances[i] = b.Clone()
	}
	clone.Escrows = make([]*escrow.TableEscrow, len(s.Escrows))
	for i, e := range s.Escrows {
		clone.Escrows[i] = e.Clone()
	}
	clone.SettlementHistory = make([]*ledger.SettlementRecord, len(s.SettlementHistory))
	for i, rec := range s.SettlementHistory {
		clone.SettlementHistory[i] = rec.Clone()
	}
	return &clone
}

// normalize sorts every section into its canonical order: balances by
// player, escrows by (table, player), settlements by (table, hand).
func (s *EconomySnapshot) normalize() {
	sort.Slice(s.Balances, func(i, j int) bool {
		return s.Balances[i].PlayerID < s.Balances[j].PlayerID
	})
	sort.Slice(s.Escrows, func(i, j int) bool {
		a, b := s.Escrows[i], s.Escrows[j]
		if a.TableID != b.TableID {
			return a.TableID < b.TableID
		}
		return a.PlayerID < b.PlayerID
	})
	sort.Slice(s.SettlementHistory, func(i, j int) bool {
		a, b := s.SettlementHistory[i], s.SettlementHistory[j]
		if a.TableID != b.TableID {
			return a.TableID < b.TableID
		}
		return a.HandID < b.HandID
	})
}

// ComputeChecksum hashes the canonical serialization: the header minus
// the checksum itself, then every section in order.
func (s *EconomySnapshot) ComputeChecksum() string {
	var buf bytes.Buffer
	buf.WriteString("cardroom/snapshot/v1\x00")
	writeString(&buf, s.SnapshotID)
	writeUint64(&buf, s.Version)
	writeInt64(&buf, s.Timestamp)
	writeInt64(&buf, int64(s.PendingTxns))

	writeUint64(&buf, uint64(len(s.Balances)))
	for _, b := range s.Balances {
		writeString(&buf, b.PlayerID)
		writeInt64(&buf, b.Available)
		writeInt64(&buf, b.Locked)
		writeInt64(&buf, b.Pending)
	}
	writeUint64(&buf, uint64(len(s.Escrows)))
	for _, e := range s.Escrows {
		writeString(&buf, e.TableID)
		writeString(&buf, e.PlayerID)
		writeInt64(&buf, e.Stack)
		writeInt64(&buf, e.Committed)
		writeInt64(&buf, e.TotalBuyIn)
		writeInt64(&buf, e.TotalCashOut)
	}
	writeUint64(&buf, uint64(len(s.SettlementHistory)))
	for _, rec := range s.SettlementHistory {
		writeString(&buf, rec.SettlementID)
		writeString(&buf, rec.TableID)
		writeString(&buf, rec.HandID)
		writeInt64(&buf, rec.Timestamp)
		writeInt64(&buf, rec.TotalPot)
		writeInt64(&buf, rec.RakeCollected)
		writeInt64(&buf, rec.ChipsBefore)
		writeInt64(&buf, rec.ChipsAfter)
		players := make([]string, 0, len(rec.PlayerPayouts))
		for playerID := range rec.PlayerPayouts {
			players = append(players, playerID)
		}
		sort.Strings(players)
		writeUint64(&buf, uint64(len(players)))
		for _, playerID := range players {
			writeString(&buf, playerID)
			writeInt64(&buf, rec.PlayerPayouts[playerID])
		}
		writeUint64(&buf, uint64(len(rec.ReferencedEntryIDs)))
		for _, id := range rec.ReferencedEntryIDs {
			writeString(&buf, id)
		}
	}
	sum := blake3.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}

// Verify recomputes the checksum and compares.
func (s *EconomySnapshot) Verify() error {
	if got := s.ComputeChecksum(); got != s.Checksum {
		return types.ErrFatal(types.CodeChecksumMismatch, "snapshot checksum mismatch", map[string]string{
			"snapshotId": s.SnapshotID,
			"expected":   s.Checksum,
			"computed":   got,
		})
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	writeUint64(buf, uint64(len(s)))
	buf.WriteString(s)
}

func writeUint64(buf *bytes.Buffer, v uint64) {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], v)
	buf.Write(raw[:])
}

func writeInt64(buf *bytes.Buffer, v int64) {
	writeUint64(buf, uint64(v))
}
