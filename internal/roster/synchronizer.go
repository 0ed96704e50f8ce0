package roster

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/example/missing-persons/internal/domain/person"
	"github.com/example/missing-persons/internal/infrastructure/store"
	"github.com/example/missing-persons/internal/logging"
	"github.com/example/missing-persons/internal/metrics"
	"github.com/sirupsen/logrus"
)

// State is the lifecycle of a Synchronizer
type State int

const (
	Uninitialized State = iota
	Loading
	Live
	Terminated
)

func (s State) String() string {
	switch s {
	case Uninitialized:
		return "uninitialized"
	case Loading:
		return "loading"
	case Live:
		return "live"
	case Terminated:
		return "terminated"
	}
	return "unknown"
}

const eventBuffer = 256

var logger = logging.Component("roster")

// Synchronizer keeps a local roster in step with a RemoteStore. One writer
// goroutine per live session owns the roster; every reader sees published
// copies.
type Synchronizer struct {
	store store.RemoteStore
	now   func() time.Time

	// lifecycle serializes Activate and Deactivate
	lifecycle sync.Mutex

	mu        sync.RWMutex
	state     State
	session   *session
	records   []person.Record
	mutations map[string]MutationState

	watchMu  sync.Mutex
	watchers map[int]chan []person.Record
	nextID   int
}

type op struct {
	fn  func(r *roster) (bool, error)
	res chan error
}

type session struct {
	subID  store.SubscriptionID
	roster *roster
	events chan store.ChangeEvent
	ops    chan op
	quit   chan struct{}
	done   chan struct{}
}

// NewSynchronizer creates an uninitialized synchronizer over remote
func NewSynchronizer(remote store.RemoteStore) *Synchronizer {
	return &Synchronizer{
		store:    remote,
		now:      time.Now,
		watchers: make(map[int]chan []person.Record),
	}
}

// SetClock overrides the time used for provisional found dates
func (s *Synchronizer) SetClock(now func() time.Time) {
	s.now = now
}

// Activate loads the initial roster, then subscribes to changes. On failure
// the synchronizer is left Terminated and may be activated again.
func (s *Synchronizer) Activate(ctx context.Context) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.Lock()
	if s.state == Loading || s.state == Live {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.state = Loading
	s.mu.Unlock()

	logger.Info("[Roster] Loading initial roster")

	records, err := s.store.Query(ctx)
	if err != nil {
		s.terminate()
		logger.WithError(err).Error("[Roster] Initial query failed")
		return &SyncError{Op: "query", Err: err}
	}

	sess := &session{
		roster: newRoster(records),
		events: make(chan store.ChangeEvent, eventBuffer),
		ops:    make(chan op),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
	}

	subID, err := s.store.Subscribe(ctx, sess.enqueue)
	if err != nil {
		s.terminate()
		logger.WithError(err).Error("[Roster] Subscribe failed")
		return &SyncError{Op: "subscribe", Err: err}
	}
	sess.subID = subID

	view, states := sess.roster.view()
	s.mu.Lock()
	s.session = sess
	s.state = Live
	s.records = view
	s.mutations = states
	s.mu.Unlock()

	// The initial view goes out before the writer can publish a newer one
	metrics.RosterSize.Set(float64(len(view)))
	s.notify(view)

	go s.run(sess)

	logger.WithFields(logrus.Fields{
		"records":      len(view),
		"subscription": subID,
	}).Info("[Roster] Roster is live")
	return nil
}

// Deactivate releases the subscription and discards the roster. It is a
// no-op unless the synchronizer is Live.
func (s *Synchronizer) Deactivate() error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	s.mu.RLock()
	sess := s.session
	s.mu.RUnlock()
	if sess == nil {
		return nil
	}

	err := s.store.Unsubscribe(sess.subID)
	close(sess.quit)
	<-sess.done

	s.terminate()
	if err != nil {
		logger.WithError(err).Warn("[Roster] Unsubscribe failed")
		return err
	}
	logger.Info("[Roster] Roster deactivated")
	return nil
}

func (s *Synchronizer) terminate() {
	s.mu.Lock()
	s.session = nil
	s.state = Terminated
	s.records = nil
	s.mutations = nil
	s.mu.Unlock()

	metrics.RosterSize.Set(0)
	s.notify([]person.Record{})
}

// MarkFound shows id as found immediately and asks the remote store to
// persist it. If the store fails the record goes back to its prior value,
// unless a remote found update arrived in the meantime.
func (s *Synchronizer) MarkFound(ctx context.Context, id string) error {
	sess, err := s.liveSession()
	if err != nil {
		return err
	}

	noop := false
	err = sess.do(func(r *roster) (bool, error) {
		i := r.find(id)
		if i < 0 {
			return false, ErrRecordNotFound
		}
		held := r.records[i]
		updated, changed := held.MarkFound(s.now())
		if !changed {
			noop = true
			return false, nil
		}
		r.records[i] = updated
		r.seq++
		r.mutations[id] = &mutation{
			seq:         r.seq,
			state:       MutationPending,
			prior:       held.Clone(),
			provisional: updated.Clone(),
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	if noop {
		metrics.MarkFound.WithLabelValues("noop").Inc()
		return nil
	}

	log := logger.WithField("id", id)
	if err := s.store.UpdateStatus(ctx, id); err != nil {
		_ = sess.do(func(r *roster) (bool, error) {
			return r.revert(id), nil
		})
		metrics.MarkFound.WithLabelValues("update_failed").Inc()
		log.WithError(err).Warn("[Roster] Mark found failed, reverted")
		return &UpdateFailedError{ID: id, Err: &store.Error{Op: "update_status", ID: id, Err: err}}
	}

	_ = sess.do(func(r *roster) (bool, error) {
		if m, ok := r.mutations[id]; ok && m.state == MutationPending {
			r.settle(id, MutationConfirmed)
			return true, nil
		}
		return false, nil
	})
	metrics.MarkFound.WithLabelValues("success").Inc()
	log.Info("[Roster] Record marked found")
	return nil
}

// revert undoes a pending mutation. A found copy that arrived from the store
// stays.
func (r *roster) revert(id string) bool {
	m, ok := r.mutations[id]
	if !ok || m.state != MutationPending {
		return false
	}
	i := r.find(id)
	switch {
	case i < 0:
		r.settle(id, MutationReverted)
	case r.records[i].Equal(m.provisional):
		r.records[i] = m.prior.Clone()
		r.settle(id, MutationReverted)
	default:
		r.settle(id, MutationConfirmed)
	}
	return true
}

func (s *Synchronizer) liveSession() (*session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != Live || s.session == nil {
		return nil, ErrNotLive
	}
	return s.session, nil
}

// run is the only goroutine that touches sess.roster
func (s *Synchronizer) run(sess *session) {
	defer close(sess.done)
	for {
		select {
		case <-sess.quit:
			return
		case ev := <-sess.events:
			changed, outcome := sess.roster.apply(ev)
			metrics.RosterEvents.WithLabelValues(string(ev.Kind), outcome).Inc()
			logger.WithFields(logrus.Fields{
				"kind":    ev.Kind,
				"id":      ev.ID,
				"outcome": outcome,
			}).Debug("[Roster] Change event")
			if changed {
				s.publish(sess)
			}
		case o := <-sess.ops:
			changed, err := o.fn(sess.roster)
			if changed {
				s.publish(sess)
			}
			o.res <- err
		}
	}
}

func (s *Synchronizer) publish(sess *session) {
	view, states := sess.roster.view()

	s.mu.Lock()
	if s.session != sess {
		s.mu.Unlock()
		return
	}
	s.records = view
	s.mutations = states
	s.mu.Unlock()

	metrics.RosterSize.Set(float64(len(view)))
	s.notify(view)
}

func (sess *session) enqueue(ev store.ChangeEvent) {
	select {
	case sess.events <- ev:
	case <-sess.quit:
	}
}

func (sess *session) do(fn func(r *roster) (bool, error)) error {
	res := make(chan error, 1)
	select {
	case sess.ops <- op{fn: fn, res: res}:
	case <-sess.quit:
		return ErrNotLive
	}
	select {
	case err := <-res:
		return err
	case <-sess.done:
		return ErrNotLive
	}
}

// State returns the current lifecycle state
func (s *Synchronizer) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Loading is true while the initial query is in flight
func (s *Synchronizer) Loading() bool {
	return s.State() == Loading
}

// Snapshot returns a copy of the roster, newest first
func (s *Synchronizer) Snapshot() []person.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]person.Record, len(s.records))
	for i, rec := range s.records {
		out[i] = rec.Clone()
	}
	return out
}

// Search filters the current snapshot
func (s *Synchronizer) Search(query string) []person.Record {
	return Filter(s.Snapshot(), query)
}

// Mutation reports the optimistic mark-found state of id, if any
func (s *Synchronizer) Mutation(id string) (MutationState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	state, ok := s.mutations[id]
	return state, ok
}

// Watch returns a channel that always holds the latest snapshot. Older
// snapshots a slow reader missed are dropped.
func (s *Synchronizer) Watch() (<-chan []person.Record, func()) {
	ch := make(chan []person.Record, 1)

	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.Snapshot()
	s.watchMu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
		})
	}
	return ch, cancel
}

func (s *Synchronizer) notify(view []person.Record) {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		out := make([]person.Record, len(view))
		for i, rec := range view {
			out[i] = rec.Clone()
		}
		ch <- out
	}
}

// IsUpdateFailed reports whether err came from a rejected mark-found
func IsUpdateFailed(err error) bool {
	var uerr *UpdateFailedError
	return errors.As(err, &uerr)
}
