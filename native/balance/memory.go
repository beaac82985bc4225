package balance

import "sort"

// MemoryStore is the in-process balance backend. The keeper serializes
// access, so the store itself carries no locking.
type MemoryStore struct {
	balances map[string]*PlayerBalance
}

// NewMemoryStore returns an empty in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]*PlayerBalance)}
}

// BalanceGet returns a copy of the stored balance, if any.
func (m *MemoryStore) BalanceGet(playerID string) (*PlayerBalance, bool) {
	b, ok := m.balances[playerID]
	if !ok {
		return nil, false
	}
	return b.Clone(), true
}

// BalancePut stores a copy of the provided balance.
func (m *MemoryStore) BalancePut(b *PlayerBalance) error {
	if b == nil {
		return nil
	}
	m.balances[b.PlayerID] = b.Clone()
	return nil
}

// BalanceList returns copies of every balance sorted by player ID.
func (m *MemoryStore) BalanceList() []*PlayerBalance {
	out := make([]*PlayerBalance, 0, len(m.balances))
	for _, b := range m.balances {
		out = append(out, b.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out
}

// BalanceClear drops every balance. Used only by snapshot recovery.
func (m *MemoryStore) BalanceClear() {
	m.balances = make(map[string]*PlayerBalance)
}
