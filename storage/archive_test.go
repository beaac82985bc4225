package storage

import (
	"errors"
	"testing"

	"cardroom/core/types"
	"cardroom/native/ledger"
)

func newArchivedLedger(t *testing.T) (*ledger.Ledger, *LedgerArchive) {
	t.Helper()
	led := ledger.New()
	led.SetIDSource(&types.SequenceSource{Prefix: "e"})
	led.SetNowFunc(func() int64 { return 1_700_000_000_000 })
	archive := NewLedgerArchive(NewMemDB())
	led.SetArchive(archive)
	return led, archive
}

func TestArchiveMirrorsEntries(t *testing.T) {
	led, archive := newArchivedLedger(t)

	first, err := led.RecordDeposit("plr_a", 1000, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := led.RecordBuyIn("plr_a", "tbl_1", 400, 600); err != nil {
		t.Fatalf("buy in: %v", err)
	}

	stored, err := archive.EntryBySequence(first.Sequence)
	if err != nil {
		t.Fatalf("load entry: %v", err)
	}
	if stored.EntryID != first.EntryID || stored.Hash != first.Hash {
		t.Fatalf("archived entry differs: %+v vs %+v", stored, first)
	}
	if stored.Amount != 1000 || stored.Type != ledger.EntryTypeDeposit {
		t.Fatalf("unexpected entry fields: %+v", stored)
	}
	if got := archive.LastSequence(); got != 2 {
		t.Fatalf("last sequence should track appends, got %d", got)
	}
}

func TestArchiveMirrorsSettlements(t *testing.T) {
	led, archive := newArchivedLedger(t)

	rec := &ledger.SettlementRecord{
		SettlementID:  "stl_1",
		HandID:        "hand_1",
		TableID:       "tbl_1",
		TotalPot:      200,
		RakeCollected: 10,
		PlayerPayouts: map[string]types.Chips{"plr_a": 190},
	}
	if _, err := led.RecordSettlement(rec); err != nil {
		t.Fatalf("record settlement: %v", err)
	}

	stored, err := archive.SettlementFor("tbl_1", "hand_1")
	if err != nil {
		t.Fatalf("load settlement: %v", err)
	}
	if stored.SettlementID != "stl_1" || stored.TotalPot != 200 {
		t.Fatalf("archived settlement differs: %+v", stored)
	}
	if stored.PlayerPayouts["plr_a"] != 190 {
		t.Fatalf("payouts not preserved: %+v", stored.PlayerPayouts)
	}
}

func TestArchiveFailureSurfacesButCommits(t *testing.T) {
	led := ledger.New()
	led.SetArchive(NewLedgerArchive(failingDB{}))

	entry, err := led.RecordDeposit("plr_a", 100, 100)
	if err == nil {
		t.Fatal("archive failure should surface")
	}
	if entry == nil {
		t.Fatal("entry should still commit to the in-memory chain")
	}
	if led.Len() != 1 {
		t.Fatalf("chain should hold the entry, len=%d", led.Len())
	}
}

func TestMemDBMissingKey(t *testing.T) {
	archive := NewLedgerArchive(NewMemDB())
	if _, err := archive.EntryBySequence(7); err == nil {
		t.Fatal("missing entry should error")
	}
	if got := archive.LastSequence(); got != 0 {
		t.Fatalf("empty archive should report zero, got %d", got)
	}
}

type failingDB struct{}

func (failingDB) Put([]byte, []byte) error   { return errBackend }
func (failingDB) Get([]byte) ([]byte, error) { return nil, errBackend }
func (failingDB) Close()                     {}

var errBackend = errors.New("backend down")
