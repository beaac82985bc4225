// Package txn provides the builder-style atomic transaction the
// keepers commit through. A transaction executes its operations in
// order; the first failure unwinds the already-executed steps through
// their compensating rollbacks, in reverse. Idempotency keys make a
// replayed commit a no-op that reports prior success.
package txn

import (
	"log/slog"
	"strings"
	"sync"
	"time"

	"cardroom/core/types"
)

// DefaultTimeout bounds how long a transaction may stay pending before
// commit refuses to run it.
const DefaultTimeout = 30 * time.Second

// DefaultLogCap bounds the retained transaction log.
const DefaultLogCap = 4096

// Coordinator owns the processed-key set and the transaction log. It
// is safe for concurrent use; each Commit runs under the coordinator's
// lock so cross-transaction interleaving cannot split an atomic unit.
type Coordinator struct {
	mu        sync.Mutex
	processed map[string]*Transaction
	log       []*Transaction
	logCap    int
	logging   bool

	ids    types.IDSource
	nowFn  func() int64
	logger *slog.Logger
}

// NewCoordinator creates a coordinator with transaction logging on.
func NewCoordinator() *Coordinator {
	return &Coordinator{
		processed: make(map[string]*Transaction),
		logCap:    DefaultLogCap,
		logging:   true,
		ids:       types.UUIDSource{},
		nowFn:     func() int64 { return time.Now().UnixMilli() },
		logger:    slog.Default(),
	}
}

// SetIDSource overrides the transaction ID source.
func (c *Coordinator) SetIDSource(src types.IDSource) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if src == nil {
		c.ids = types.UUIDSource{}
		return
	}
	c.ids = src
}

// SetNowFunc overrides the millisecond time source.
func (c *Coordinator) SetNowFunc(now func() int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now == nil {
		c.nowFn = func() int64 { return time.Now().UnixMilli() }
		return
	}
	c.nowFn = now
}

// SetLogger overrides the rollback-failure logger.
func (c *Coordinator) SetLogger(logger *slog.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if logger == nil {
		logger = slog.Default()
	}
	c.logger = logger
}

// SetLogging toggles retention of committed transactions.
func (c *Coordinator) SetLogging(on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logging = on
}

// SetLogCap bounds the transaction log; zero or negative restores the
// default.
func (c *Coordinator) SetLogCap(cap int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if cap <= 0 {
		cap = DefaultLogCap
	}
	c.logCap = cap
}

// step is one (operation, compensating rollback) pair.
type step struct {
	record   OpRecord
	execute  func() error
	rollback func() error
}

// Builder accumulates a transaction's steps in order. It is not safe
// for concurrent use; build on one goroutine and commit once.
type Builder struct {
	coord   *Coordinator
	handID  string
	tableID string
	key     string
	timeout time.Duration
	steps   []step
}

// Begin starts a new transaction builder.
func (c *Coordinator) Begin() *Builder {
	return &Builder{coord: c, timeout: DefaultTimeout}
}

// WithHand attaches the owning hand ID.
func (b *Builder) WithHand(handID string) *Builder {
	b.handID = strings.TrimSpace(handID)
	return b
}

// WithTable attaches the owning table ID.
func (b *Builder) WithTable(tableID string) *Builder {
	b.tableID = strings.TrimSpace(tableID)
	return b
}

// WithIdempotencyKey arms de-duplication: once a transaction commits
// under the key, later commits with the same key return prior success
// without executing.
func (b *Builder) WithIdempotencyKey(key string) *Builder {
	b.key = strings.TrimSpace(key)
	return b
}

// WithTimeout overrides the pending-age limit checked at commit.
func (b *Builder) WithTimeout(timeout time.Duration) *Builder {
	if timeout > 0 {
		b.timeout = timeout
	}
	return b
}

// Op appends one operation with its compensating rollback. A nil
// rollback registers a no-op: such steps must only appear inside the
// settlement engine's single transaction, which is idempotent at a
// higher level.
func (b *Builder) Op(kind OpKind, label string, execute, rollback func() error) *Builder {
	b.steps = append(b.steps, step{
		record:   OpRecord{Kind: kind, Label: label},
		execute:  execute,
		rollback: rollback,
	})
	return b
}

// BetOp appends a bet-action step tagged with its street.
func (b *Builder) BetOp(street types.Street, label string, execute, rollback func() error) *Builder {
	b.steps = append(b.steps, step{
		record:   OpRecord{Kind: OpBetAction, Label: label, Street: street},
		execute:  execute,
		rollback: rollback,
	})
	return b
}

// Commit executes the transaction. The returned result always carries
// the transaction record; Err is nil exactly when Success is true.
func (b *Builder) Commit() Result {
	return b.coord.commit(b)
}

func (c *Coordinator) commit(b *Builder) Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.nowFn()
	if b.key != "" {
		if prior, ok := c.processed[b.key]; ok {
			return Result{Success: true, AlreadyProcessed: true, Transaction: prior.Clone()}
		}
	}

	tx := &Transaction{
		TransactionID:  types.NewID(types.PrefixTxn, c.ids),
		HandID:         b.handID,
		TableID:        b.tableID,
		IdempotencyKey: b.key,
		Status:         StatusPending,
		CreatedAt:      now,
		Operations:     make([]OpRecord, 0, len(b.steps)),
	}

	deadline := now + b.timeout.Milliseconds()
	executed := make([]step, 0, len(b.steps))
	for _, s := range b.steps {
		if c.nowFn() > deadline {
			err := types.ErrTimeout("transaction exceeded its timeout", map[string]string{
				"transactionId": tx.TransactionID,
			})
			return c.rollbackLocked(tx, executed, err)
		}
		if err := s.execute(); err != nil {
			return c.rollbackLocked(tx, executed, err)
		}
		executed = append(executed, s)
		tx.Operations = append(tx.Operations, s.record)
	}

	tx.Status = StatusCommitted
	tx.CommittedAt = c.nowFn()
	if b.key != "" {
		c.processed[b.key] = tx
	}
	c.appendLogLocked(tx)
	return Result{Success: true, Transaction: tx.Clone()}
}

// rollbackLocked unwinds the executed steps in reverse. Rollback
// errors are logged and skipped so failure handling stays bounded; a
// rollback that itself fails leaves the transaction marked Failed
// instead of RolledBack.
func (c *Coordinator) rollbackLocked(tx *Transaction, executed []step, cause error) Result {
	clean := true
	for i := len(executed) - 1; i >= 0; i-- {
		s := executed[i]
		if s.rollback == nil {
			continue
		}
		if err := s.rollback(); err != nil {
			clean = false
			c.logger.Error("transaction rollback step failed",
				"transactionId", tx.TransactionID,
				"operation", string(s.record.Kind),
				"error", err)
		}
	}
	if clean {
		tx.Status = StatusRolledBack
	} else {
		tx.Status = StatusFailed
	}
	tx.RolledBackAt = c.nowFn()
	if cause != nil {
		tx.Error = cause.Error()
	}
	c.appendLogLocked(tx)
	return Result{RollbackPerformed: true, Err: cause, Transaction: tx.Clone()}
}

func (c *Coordinator) appendLogLocked(tx *Transaction) {
	if !c.logging {
		return
	}
	c.log = append(c.log, tx)
	if len(c.log) > c.logCap {
		c.log = append(c.log[:0], c.log[len(c.log)-c.logCap:]...)
	}
}

// Processed reports whether the key has a committed transaction.
func (c *Coordinator) Processed(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.processed[strings.TrimSpace(key)]
	return ok
}

// Transactions returns copies of the retained log, oldest first.
func (c *Coordinator) Transactions() []*Transaction {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Transaction, len(c.log))
	for i, tx := range c.log {
		out[i] = tx.Clone()
	}
	return out
}

// Purge drops non-pending transactions older than maxAge. Pending
// transactions are never purged; processed keys survive so idempotency
// outlives the log.
func (c *Coordinator) Purge(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	cutoff := c.nowFn() - maxAge.Milliseconds()
	kept := c.log[:0]
	removed := 0
	for _, tx := range c.log {
		if tx.Status != StatusPending && tx.CreatedAt < cutoff {
			removed++
			continue
		}
		kept = append(kept, tx)
	}
	c.log = kept
	return removed
}
