package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"

	"cardroom/native/ledger"
)

// Key layout for the ledger archive. Entries sort by big-endian sequence
// so a range scan on a sorted backend walks the chain in order.
var (
	prefixEntry      = []byte("le/")
	prefixSettlement = []byte("ls/")
	keyLastSequence  = []byte("lm/lastSeq")
)

// LedgerArchive mirrors committed ledger entries and settlement records
// into a key-value backend. It implements ledger.Archive; the in-memory
// chain stays authoritative, the archive exists so an operator can audit
// past process restarts.
type LedgerArchive struct {
	db Database
}

// NewLedgerArchive wraps a database as a ledger mirror.
func NewLedgerArchive(db Database) *LedgerArchive {
	return &LedgerArchive{db: db}
}

// ArchiveEntry stores one committed entry under its sequence number and
// advances the last-sequence marker.
func (a *LedgerArchive) ArchiveEntry(entry *ledger.Entry) error {
	if entry == nil {
		return fmt.Errorf("archive: nil entry")
	}
	encoded, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("archive: encode entry %s: %w", entry.EntryID, err)
	}
	if err := a.db.Put(entryKey(entry.Sequence), encoded); err != nil {
		return fmt.Errorf("archive: store entry %s: %w", entry.EntryID, err)
	}
	return a.db.Put(keyLastSequence, sequenceBytes(entry.Sequence))
}

// ArchiveSettlement stores one settlement record under its (table, hand)
// pair, overwriting any previous copy of the same record.
func (a *LedgerArchive) ArchiveSettlement(rec *ledger.SettlementRecord) error {
	if rec == nil {
		return fmt.Errorf("archive: nil settlement record")
	}
	encoded, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("archive: encode settlement %s: %w", rec.SettlementID, err)
	}
	return a.db.Put(settlementKey(rec.TableID, rec.HandID), encoded)
}

// EntryBySequence loads one archived entry.
func (a *LedgerArchive) EntryBySequence(seq uint64) (*ledger.Entry, error) {
	raw, err := a.db.Get(entryKey(seq))
	if err != nil {
		return nil, err
	}
	entry := &ledger.Entry{}
	if err := json.Unmarshal(raw, entry); err != nil {
		return nil, fmt.Errorf("archive: decode entry %d: %w", seq, err)
	}
	return entry, nil
}

// SettlementFor loads the archived settlement for a (table, hand) pair.
func (a *LedgerArchive) SettlementFor(tableID, handID string) (*ledger.SettlementRecord, error) {
	raw, err := a.db.Get(settlementKey(tableID, handID))
	if err != nil {
		return nil, err
	}
	rec := &ledger.SettlementRecord{}
	if err := json.Unmarshal(raw, rec); err != nil {
		return nil, fmt.Errorf("archive: decode settlement %s/%s: %w", tableID, handID, err)
	}
	return rec, nil
}

// LastSequence returns the highest archived entry sequence, zero when
// the archive is empty.
func (a *LedgerArchive) LastSequence() uint64 {
	raw, err := a.db.Get(keyLastSequence)
	if err != nil || len(raw) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(raw)
}

func entryKey(seq uint64) []byte {
	return append(append([]byte{}, prefixEntry...), sequenceBytes(seq)...)
}

func settlementKey(tableID, handID string) []byte {
	key := append([]byte{}, prefixSettlement...)
	key = append(key, tableID...)
	key = append(key, '/')
	return append(key, handID...)
}

func sequenceBytes(seq uint64) []byte {
	var raw [8]byte
	binary.BigEndian.PutUint64(raw[:], seq)
	return raw[:]
}
