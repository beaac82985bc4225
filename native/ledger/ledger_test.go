package ledger

import (
	"errors"
	"testing"

	"cardroom/core/types"
)

func newTestLedger() *Ledger {
	l := New()
	l.SetIDSource(&types.SequenceSource{Prefix: "t"})
	var clock int64 = 1_700_000_000_000
	l.SetNowFunc(func() int64 { clock++; return clock })
	return l
}

func TestAppendChainsHashes(t *testing.T) {
	l := newTestLedger()
	first, err := l.RecordDeposit("plr_a", 1000, 1000)
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if first.Sequence != 0 {
		t.Fatalf("expected sequence 0, got %d", first.Sequence)
	}
	if first.PrevHash != GenesisHash() {
		t.Fatalf("first entry must chain to genesis")
	}
	second, err := l.RecordBuyIn("plr_a", "tbl_1", 500, 500)
	if err != nil {
		t.Fatalf("buy-in: %v", err)
	}
	if second.Sequence != 1 {
		t.Fatalf("expected sequence 1, got %d", second.Sequence)
	}
	if second.PrevHash != first.Hash {
		t.Fatalf("chain broken: prev=%s want=%s", second.PrevHash, first.Hash)
	}
	if second.Amount != -500 {
		t.Fatalf("buy-in must debit available, got %d", second.Amount)
	}
	if ok, brokenAt := l.VerifyIntegrity(); !ok {
		t.Fatalf("integrity broken at %d", brokenAt)
	}
}

func TestVerifyIntegrityDetectsTamper(t *testing.T) {
	l := newTestLedger()
	if _, err := l.RecordDeposit("plr_a", 100, 100); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if _, err := l.RecordDeposit("plr_b", 200, 200); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	// Reach into the chain and flip an amount.
	l.entries[0].Amount = 999
	ok, brokenAt := l.VerifyIntegrity()
	if ok || brokenAt != 0 {
		t.Fatalf("expected break at 0, got ok=%v at %d", ok, brokenAt)
	}
	if !l.Halted() {
		t.Fatalf("ledger must halt after integrity failure")
	}
	if _, err := l.RecordDeposit("plr_c", 1, 1); !errors.Is(err, types.ErrLedgerIntegrity) {
		t.Fatalf("expected halted error, got %v", err)
	}
}

func TestSecondaryIndexes(t *testing.T) {
	l := newTestLedger()
	if _, err := l.RecordBet("plr_a", "hand_1", "tbl_1", 85, 415, types.StreetRiver); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := l.RecordBet("plr_b", "hand_1", "tbl_1", 35, 465, types.StreetFlop); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := l.RecordPotWin("plr_a", "hand_1", "tbl_1", 114, 529); err != nil {
		t.Fatalf("win: %v", err)
	}
	if got := len(l.EntriesByHand("hand_1")); got != 3 {
		t.Fatalf("expected 3 hand entries, got %d", got)
	}
	if got := len(l.EntriesByPlayer("plr_a")); got != 2 {
		t.Fatalf("expected 2 player entries, got %d", got)
	}
	if got := len(l.EntriesByTable("tbl_1")); got != 3 {
		t.Fatalf("expected 3 table entries, got %d", got)
	}
	if got := len(l.EntriesByHand("hand_2")); got != 0 {
		t.Fatalf("expected no entries for other hand, got %d", got)
	}
}

func TestRecordSettlementDeduplicates(t *testing.T) {
	l := newTestLedger()
	rec := &SettlementRecord{
		HandID: "hand_1", TableID: "tbl_1",
		TotalPot: 120, RakeCollected: 6,
		PlayerPayouts: map[string]types.Chips{"plr_a": 114},
		ChipsBefore:   120, ChipsAfter: 120,
	}
	stored, err := l.RecordSettlement(rec)
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if stored.IdempotencyKey != "tbl_1::hand_1" {
		t.Fatalf("unexpected key %q", stored.IdempotencyKey)
	}
	if stored.SettlementID == "" {
		t.Fatalf("settlement id must be minted")
	}
	if _, err := l.RecordSettlement(rec); !errors.Is(err, types.ErrDuplicateSettlement) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	got, ok := l.SettlementFor("tbl_1", "hand_1")
	if !ok || got.TotalPot != 120 {
		t.Fatalf("unexpected stored record: %+v", got)
	}
}

func TestRecordSettlementRejectsLeakedChips(t *testing.T) {
	l := newTestLedger()
	_, err := l.RecordSettlement(&SettlementRecord{
		HandID: "hand_1", TableID: "tbl_1",
		TotalPot: 120, RakeCollected: 6,
		PlayerPayouts: map[string]types.Chips{"plr_a": 113},
		ChipsBefore:   120, ChipsAfter: 120,
	})
	if !errors.Is(err, types.ErrConservation) {
		t.Fatalf("expected conservation error, got %v", err)
	}
}

func TestVerifyHandConservation(t *testing.T) {
	l := newTestLedger()
	if _, err := l.RecordBet("plr_a", "hand_1", "tbl_1", 85, 415, types.StreetRiver); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := l.RecordBet("plr_b", "hand_1", "tbl_1", 35, 465, types.StreetFlop); err != nil {
		t.Fatalf("bet: %v", err)
	}
	if _, err := l.RecordPotWin("plr_a", "hand_1", "tbl_1", 114, 529); err != nil {
		t.Fatalf("win: %v", err)
	}
	if _, err := l.RecordRake("hand_1", "tbl_1", 6); err != nil {
		t.Fatalf("rake: %v", err)
	}
	if _, err := l.RecordSettlement(&SettlementRecord{
		HandID: "hand_1", TableID: "tbl_1",
		TotalPot: 120, RakeCollected: 6,
		PlayerPayouts: map[string]types.Chips{"plr_a": 114},
		ChipsBefore:   120, ChipsAfter: 120,
	}); err != nil {
		t.Fatalf("settlement: %v", err)
	}
	ok, sum, err := l.VerifyHandConservation("hand_1")
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok || sum != 0 {
		t.Fatalf("expected conserved hand, got ok=%v sum=%d", ok, sum)
	}
	if got := l.RakeTotal(); got != 6 {
		t.Fatalf("expected rake total 6, got %d", got)
	}
}

func TestRestoreSettlementsKeepsIdempotency(t *testing.T) {
	l := newTestLedger()
	if _, err := l.RecordSettlement(&SettlementRecord{
		HandID: "hand_1", TableID: "tbl_1",
		TotalPot: 100, RakeCollected: 0,
		PlayerPayouts: map[string]types.Chips{"plr_a": 100},
		ChipsBefore:   100, ChipsAfter: 100,
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	history := l.SettlementHistory()

	fresh := newTestLedger()
	fresh.RestoreSettlements(history)
	_, err := fresh.RecordSettlement(&SettlementRecord{
		HandID: "hand_1", TableID: "tbl_1",
		TotalPot: 100, RakeCollected: 0,
		PlayerPayouts: map[string]types.Chips{"plr_a": 100},
		ChipsBefore:   100, ChipsAfter: 100,
	})
	if !errors.Is(err, types.ErrDuplicateSettlement) {
		t.Fatalf("expected duplicate after restore, got %v", err)
	}
}

func TestMetadataOrderDoesNotChangeHash(t *testing.T) {
	build := func(meta map[string]string) string {
		l := New()
		l.SetIDSource(&types.SequenceSource{Prefix: "t"})
		l.SetNowFunc(func() int64 { return 42 })
		entry, err := l.Append(AppendParams{
			Type: EntryTypeAdjustment, PlayerID: "plr_a", Amount: 1,
			Reason: "adjust", BalanceAfter: 1, Metadata: meta,
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		return entry.Hash
	}
	h1 := build(map[string]string{"a": "1", "b": "2", "c": "3"})
	h2 := build(map[string]string{"c": "3", "a": "1", "b": "2"})
	if h1 != h2 {
		t.Fatalf("hash must be independent of metadata insertion order")
	}
}
