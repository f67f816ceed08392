package repository

import (
	"sync"

	"settlepos/internal/model"

	"github.com/google/uuid"
)

// SettlementStore holds in-flight settlements. Settlements are deliberately
// NOT persisted: they exist only between "sale enters payment" and "invoiced
// or abandoned" (the receipt row is the durable artifact).
//
// The map lock guards the index only. Each settlement has a single logical
// owner (one operator, one sale), so settlement-level mutation needs no
// finer locking by construction.
type SettlementStore struct {
	mu          sync.RWMutex
	settlements map[uuid.UUID]*model.Settlement
}

func NewSettlementStore() *SettlementStore {
	return &SettlementStore{settlements: make(map[uuid.UUID]*model.Settlement)}
}

func (st *SettlementStore) Save(s *model.Settlement) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.settlements[s.ID] = s
}

func (st *SettlementStore) Get(id uuid.UUID) (*model.Settlement, error) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	s, ok := st.settlements[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	return s, nil
}

// Delete discards a settlement (after finalize or abandon).
func (st *SettlementStore) Delete(id uuid.UUID) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.settlements, id)
}

// CountBySession reports in-flight settlements bound to a session. Used by
// session close to warn about sales still collecting payment.
func (st *SettlementStore) CountBySession(sessionID uuid.UUID) int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	n := 0
	for _, s := range st.settlements {
		if s.SessionID == sessionID {
			n++
		}
	}
	return n
}
