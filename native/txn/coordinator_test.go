package txn

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"cardroom/core/types"
)

func newTestCoordinator() (*Coordinator, *int64) {
	c := NewCoordinator()
	c.SetIDSource(&types.SequenceSource{Prefix: "t"})
	c.SetLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	clock := int64(1_700_000_000_000)
	c.SetNowFunc(func() int64 { return clock })
	return c, &clock
}

func TestCommitRunsOperationsInOrder(t *testing.T) {
	c, _ := newTestCoordinator()
	var trace []string
	res := c.Begin().
		Op(OpLockChips, "lock", func() error { trace = append(trace, "a"); return nil }, nil).
		Op(OpBuyIn, "buy-in", func() error { trace = append(trace, "b"); return nil }, nil).
		Commit()
	if !res.Success || res.Err != nil {
		t.Fatalf("commit failed: %+v", res)
	}
	if len(trace) != 2 || trace[0] != "a" || trace[1] != "b" {
		t.Fatalf("wrong execution order: %v", trace)
	}
	if res.Transaction.Status != StatusCommitted {
		t.Fatalf("expected committed status, got %s", res.Transaction.Status)
	}
	if len(res.Transaction.Operations) != 2 {
		t.Fatalf("trace must record both ops, got %d", len(res.Transaction.Operations))
	}
}

func TestFailureRollsBackExecutedOnlyInReverse(t *testing.T) {
	c, _ := newTestCoordinator()
	var rolled []string
	boom := errors.New("third op failed")
	res := c.Begin().
		Op(OpLockChips, "one", func() error { return nil }, func() error { rolled = append(rolled, "one"); return nil }).
		Op(OpCommitToPot, "two", func() error { return nil }, func() error { rolled = append(rolled, "two"); return nil }).
		Op(OpMoveToPot, "three", func() error { return boom }, func() error { rolled = append(rolled, "three"); return nil }).
		Commit()
	if res.Success || !res.RollbackPerformed {
		t.Fatalf("expected rollback result, got %+v", res)
	}
	if !errors.Is(res.Err, boom) {
		t.Fatalf("result must carry the cause, got %v", res.Err)
	}
	if len(rolled) != 2 || rolled[0] != "two" || rolled[1] != "one" {
		t.Fatalf("rollback must cover executed ops in reverse, got %v", rolled)
	}
	if res.Transaction.Status != StatusRolledBack {
		t.Fatalf("expected rolled-back status, got %s", res.Transaction.Status)
	}
}

func TestRollbackErrorIsSwallowed(t *testing.T) {
	c, _ := newTestCoordinator()
	res := c.Begin().
		Op(OpLockChips, "bad rollback", func() error { return nil }, func() error { return errors.New("rollback broke") }).
		Op(OpBuyIn, "fails", func() error { return errors.New("exec broke") }, nil).
		Commit()
	if res.Success {
		t.Fatalf("expected failure")
	}
	if res.Transaction.Status != StatusFailed {
		t.Fatalf("dirty rollback must mark Failed, got %s", res.Transaction.Status)
	}
}

func TestIdempotencyKeyDeduplicates(t *testing.T) {
	c, _ := newTestCoordinator()
	runs := 0
	build := func() Result {
		return c.Begin().
			WithIdempotencyKey("tbl_1::hand_1").
			Op(OpAwardPot, "award", func() error { runs++; return nil }, nil).
			Commit()
	}
	first := build()
	if !first.Success || first.AlreadyProcessed {
		t.Fatalf("first commit must execute: %+v", first)
	}
	second := build()
	if !second.Success || !second.AlreadyProcessed {
		t.Fatalf("second commit must dedupe: %+v", second)
	}
	if runs != 1 {
		t.Fatalf("operation ran %d times", runs)
	}
	if second.Transaction.TransactionID != first.Transaction.TransactionID {
		t.Fatalf("replay must return the prior transaction")
	}
}

func TestFailedCommitDoesNotConsumeKey(t *testing.T) {
	c, _ := newTestCoordinator()
	res := c.Begin().
		WithIdempotencyKey("key_a").
		Op(OpBuyIn, "fails", func() error { return errors.New("nope") }, nil).
		Commit()
	if res.Success {
		t.Fatalf("expected failure")
	}
	if c.Processed("key_a") {
		t.Fatalf("failed transaction must not consume the idempotency key")
	}
	retry := c.Begin().
		WithIdempotencyKey("key_a").
		Op(OpBuyIn, "works", func() error { return nil }, nil).
		Commit()
	if !retry.Success || retry.AlreadyProcessed {
		t.Fatalf("retry must execute fresh: %+v", retry)
	}
}

func TestTimeoutTriggersRollback(t *testing.T) {
	c, clock := newTestCoordinator()
	var rolled bool
	b := c.Begin().
		WithTimeout(time.Second).
		Op(OpLockChips, "first", func() error { *clock += 5_000; return nil }, func() error { rolled = true; return nil }).
		Op(OpBuyIn, "never runs", func() error { t.Fatal("op after deadline must not run"); return nil }, nil)
	res := b.Commit()
	if res.Success {
		t.Fatalf("expected timeout failure")
	}
	if !errors.Is(res.Err, types.ErrTxnTimeout) {
		t.Fatalf("expected timeout error, got %v", res.Err)
	}
	if !rolled {
		t.Fatalf("executed op must be rolled back on timeout")
	}
}

func TestPurgeKeepsPendingAndRecent(t *testing.T) {
	c, clock := newTestCoordinator()
	c.Begin().Op(OpBuyIn, "old", func() error { return nil }, nil).Commit()
	*clock += 60_000
	c.Begin().Op(OpBuyIn, "fresh", func() error { return nil }, nil).Commit()
	removed := c.Purge(30 * time.Second)
	if removed != 1 {
		t.Fatalf("expected 1 purged, got %d", removed)
	}
	log := c.Transactions()
	if len(log) != 1 || log[0].Operations[0].Label != "fresh" {
		t.Fatalf("wrong survivor: %+v", log)
	}
}

func TestLogCapBounds(t *testing.T) {
	c, _ := newTestCoordinator()
	c.SetLogCap(3)
	for i := 0; i < 10; i++ {
		c.Begin().Op(OpBuyIn, "op", func() error { return nil }, nil).Commit()
	}
	if got := len(c.Transactions()); got != 3 {
		t.Fatalf("log must be capped at 3, got %d", got)
	}
}
