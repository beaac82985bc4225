package escrow

import "sort"

type escrowKey struct {
	tableID  string
	playerID string
}

// MemoryStore is the in-process escrow backend. The keeper serializes
// access, so the store itself carries no locking.
type MemoryStore struct {
	escrows map[escrowKey]*TableEscrow
}

// NewMemoryStore returns an empty in-memory escrow store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{escrows: make(map[escrowKey]*TableEscrow)}
}

// EscrowGet returns a copy of the stored escrow, if any.
func (m *MemoryStore) EscrowGet(tableID, playerID string) (*TableEscrow, bool) {
	e, ok := m.escrows[escrowKey{tableID, playerID}]
	if !ok {
		return nil, false
	}
	return e.Clone(), true
}

// EscrowPut stores a copy of the provided escrow.
func (m *MemoryStore) EscrowPut(e *TableEscrow) error {
	if e == nil {
		return nil
	}
	m.escrows[escrowKey{e.TableID, e.PlayerID}] = e.Clone()
	return nil
}

// EscrowDelete removes the escrow for the pair, if present.
func (m *MemoryStore) EscrowDelete(tableID, playerID string) {
	delete(m.escrows, escrowKey{tableID, playerID})
}

// EscrowList returns copies of every escrow sorted by (tableId, playerId).
func (m *MemoryStore) EscrowList() []*TableEscrow {
	out := make([]*TableEscrow, 0, len(m.escrows))
	for _, e := range m.escrows {
		out = append(out, e.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TableID != out[j].TableID {
			return out[i].TableID < out[j].TableID
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	return out
}

// EscrowClear drops every escrow. Used only by snapshot recovery.
func (m *MemoryStore) EscrowClear() {
	m.escrows = make(map[escrowKey]*TableEscrow)
}
