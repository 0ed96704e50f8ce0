package roster

import (
	"sort"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
)

const (
	outcomeApplied = "applied"
	outcomeIgnored = "ignored"
	outcomeInvalid = "invalid"
)

// MutationState tracks an optimistic mark-found per record
type MutationState string

const (
	MutationPending   MutationState = "pending"
	MutationConfirmed MutationState = "confirmed"
	MutationReverted  MutationState = "reverted"
)

// maxSettled bounds how many confirmed or reverted tags a session keeps
const maxSettled = 256

type mutation struct {
	seq         uint64
	state       MutationState
	prior       person.Record
	provisional person.Record
}

// roster is the snapshot owned by one session's writer goroutine. Nothing
// else touches it.
type roster struct {
	records   []person.Record
	mutations map[string]*mutation
	seq       uint64
}

func newRoster(records []person.Record) *roster {
	r := &roster{
		records:   make([]person.Record, 0, len(records)),
		mutations: make(map[string]*mutation),
	}
	for _, rec := range records {
		r.upsert(rec.Clone())
	}
	return r
}

func (r *roster) find(id string) int {
	for i := range r.records {
		if r.records[i].ID == id {
			return i
		}
	}
	return -1
}

// upsert replaces or inserts rec at its ordered position
func (r *roster) upsert(rec person.Record) {
	if i := r.find(rec.ID); i >= 0 {
		r.removeAt(i)
	}
	pos := sort.Search(len(r.records), func(j int) bool {
		return !person.NewerFirst(r.records[j], rec)
	})
	r.records = append(r.records, person.Record{})
	copy(r.records[pos+1:], r.records[pos:])
	r.records[pos] = rec
}

func (r *roster) removeAt(i int) {
	r.records = append(r.records[:i], r.records[i+1:]...)
}

// apply reconciles one change event. Duplicates and stale copies are no-ops.
func (r *roster) apply(ev store.ChangeEvent) (bool, string) {
	switch ev.Kind {
	case store.ChangeDeleted:
		i := r.find(ev.ID)
		if i < 0 {
			return false, outcomeIgnored
		}
		r.removeAt(i)
		r.dropSettled(ev.ID)
		return true, outcomeApplied

	case store.ChangeInserted, store.ChangeUpdated:
		if ev.Record == nil || ev.Record.ID == "" {
			return false, outcomeInvalid
		}
		incoming := ev.Record.Clone()
		i := r.find(incoming.ID)
		if i < 0 {
			r.upsert(incoming)
			return true, outcomeApplied
		}
		held := r.records[i]

		// The remote copy of a found record replaces our provisional one and
		// retires the tag
		if m, ok := r.mutations[incoming.ID]; ok && incoming.IsFound() &&
			held.Equal(m.provisional) && !incoming.Equal(held) {
			r.upsert(incoming)
			delete(r.mutations, incoming.ID)
			return true, outcomeApplied
		}

		if !person.Supersedes(incoming, held) {
			return false, outcomeIgnored
		}
		r.upsert(incoming)
		return true, outcomeApplied
	}
	return false, outcomeInvalid
}

// settle moves a mutation out of pending and evicts the oldest settled tags
// beyond maxSettled
func (r *roster) settle(id string, state MutationState) {
	m, ok := r.mutations[id]
	if !ok {
		return
	}
	m.state = state

	settled := 0
	for _, m := range r.mutations {
		if m.state != MutationPending {
			settled++
		}
	}
	for ; settled > maxSettled; settled-- {
		oldestID, oldest := "", uint64(0)
		for id, m := range r.mutations {
			if m.state != MutationPending && (oldestID == "" || m.seq < oldest) {
				oldestID, oldest = id, m.seq
			}
		}
		delete(r.mutations, oldestID)
	}
}

// dropSettled forgets a tag unless its mark-found is still in flight
func (r *roster) dropSettled(id string) {
	if m, ok := r.mutations[id]; ok && m.state != MutationPending {
		delete(r.mutations, id)
	}
}

func (r *roster) view() ([]person.Record, map[string]MutationState) {
	records := make([]person.Record, len(r.records))
	for i, rec := range r.records {
		records[i] = rec.Clone()
	}
	states := make(map[string]MutationState, len(r.mutations))
	for id, m := range r.mutations {
		states[id] = m.state
	}
	return records, states
}
