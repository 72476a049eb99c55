// Package memory implements store.Store with in-process maps. Used in tests
// and for local development without a database.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hookline/hookline/catalog"
	"github.com/hookline/hookline/dlog"
	"github.com/hookline/hookline/event"
	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/store"
	"github.com/hookline/hookline/subscription"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store is an in-memory implementation of store.Store.
type Store struct {
	mu sync.RWMutex

	events      map[string]*event.Event
	eventsByKey map[string]string // idempotency key -> event id

	subs map[string]*subscription.Subscription

	logs     map[string]*dlog.Log
	logOrder []string // insertion order

	schemas map[string]*catalog.Schema // by event type
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		events:      make(map[string]*event.Event),
		eventsByKey: make(map[string]string),
		subs:        make(map[string]*subscription.Subscription),
		logs:        make(map[string]*dlog.Log),
		schemas:     make(map[string]*catalog.Schema),
	}
}

// Migrate is a no-op for the in-memory store.
func (s *Store) Migrate(context.Context) error { return nil }

// Ping is a no-op for the in-memory store.
func (s *Store) Ping(context.Context) error { return nil }

// Close is a no-op for the in-memory store.
func (s *Store) Close() error { return nil }

// ==================== Event Store ====================

func (s *Store) CreateEvent(_ context.Context, evt *event.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.eventsByKey[evt.IdempotencyKey]; ok {
		return event.ErrDuplicateIdempotencyKey
	}

	cp := *evt
	s.events[evt.ID.String()] = &cp
	s.eventsByKey[evt.IdempotencyKey] = evt.ID.String()
	return nil
}

func (s *Store) GetEvent(_ context.Context, evtID id.ID) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evt, ok := s.events[evtID.String()]
	if !ok {
		return nil, event.ErrNotFound
	}
	cp := *evt
	return &cp, nil
}

func (s *Store) GetEventByIdempotencyKey(_ context.Context, key string) (*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evtID, ok := s.eventsByKey[key]
	if !ok {
		return nil, event.ErrNotFound
	}
	cp := *s.events[evtID]
	return &cp, nil
}

func (s *Store) ListEvents(_ context.Context, opts event.ListOpts) ([]*event.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*event.Event
	for _, evt := range s.events {
		if opts.Type != "" && evt.Type != opts.Type {
			continue
		}
		if opts.From != nil && evt.ReceivedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && evt.ReceivedAt.After(*opts.To) {
			continue
		}
		cp := *evt
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].ReceivedAt.After(all[j].ReceivedAt)
	})

	return paginate(all, opts.Offset, opts.Limit), nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.Active && s.activePairExists(sub.EventType, sub.TargetURL, sub.ID) {
		return subscription.ErrDuplicate
	}

	cp := *sub
	s.subs[sub.ID.String()] = &cp
	return nil
}

func (s *Store) GetSubscription(_ context.Context, subID id.ID) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subs[subID.String()]
	if !ok {
		return nil, subscription.ErrNotFound
	}
	cp := *sub
	return &cp, nil
}

func (s *Store) UpdateSubscription(_ context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[sub.ID.String()]; !ok {
		return subscription.ErrNotFound
	}
	if sub.Active && s.activePairExists(sub.EventType, sub.TargetURL, sub.ID) {
		return subscription.ErrDuplicate
	}

	cp := *sub
	cp.UpdatedAt = time.Now().UTC()
	s.subs[sub.ID.String()] = &cp
	return nil
}

func (s *Store) DeleteSubscription(_ context.Context, subID id.ID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.subs[subID.String()]; !ok {
		return subscription.ErrNotFound
	}
	delete(s.subs, subID.String())
	return nil
}

func (s *Store) ListSubscriptions(_ context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*subscription.Subscription
	for _, sub := range s.subs {
		if opts.EventType != "" && sub.EventType != opts.EventType {
			continue
		}
		if opts.Active != nil && sub.Active != *opts.Active {
			continue
		}
		cp := *sub
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.Before(all[j].CreatedAt)
	})

	return paginate(all, opts.Offset, opts.Limit), nil
}

func (s *Store) ListActiveSubscriptions(_ context.Context, eventType string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*subscription.Subscription
	for _, sub := range s.subs {
		if sub.Active && sub.EventType == eventType {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// activePairExists reports whether a different active subscription already
// holds the (eventType, targetURL) pair. Caller holds the lock.
func (s *Store) activePairExists(eventType, targetURL string, exclude id.ID) bool {
	for _, other := range s.subs {
		if other.ID == exclude {
			continue
		}
		if other.Active && other.EventType == eventType && other.TargetURL == targetURL {
			return true
		}
	}
	return false
}

// ==================== Delivery Log Store ====================

func (s *Store) CreateLog(_ context.Context, eventID, subscriptionID id.ID, attempt int) (*dlog.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := &dlog.Log{
		Entity:         entity.New(),
		ID:             id.NewDeliveryLogID(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		Status:         dlog.StatusPending,
		AttemptCount:   attempt,
		AttemptedAt:    time.Now().UTC(),
	}
	s.logs[row.ID.String()] = row
	s.logOrder = append(s.logOrder, row.ID.String())

	cp := *row
	return &cp, nil
}

func (s *Store) FinishLog(_ context.Context, logID id.ID, status dlog.Status, responseCode *int, responseBody, errorMessage string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	row, ok := s.logs[logID.String()]
	if !ok {
		return dlog.ErrNotFound
	}
	if row.Terminal() {
		return dlog.ErrIllegalTransition
	}

	row.Status = status
	row.ResponseStatusCode = responseCode
	row.ResponseBody = dlog.TruncateBody(responseBody)
	row.ErrorMessage = errorMessage
	row.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) GetLog(_ context.Context, logID id.ID) (*dlog.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row, ok := s.logs[logID.String()]
	if !ok {
		return nil, dlog.ErrNotFound
	}
	cp := *row
	return &cp, nil
}

func (s *Store) ListLogs(_ context.Context, opts dlog.ListOpts) ([]*dlog.Log, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var all []*dlog.Log
	for _, row := range s.logs {
		if opts.EventID != nil && row.EventID != *opts.EventID {
			continue
		}
		if opts.SubscriptionID != nil && row.SubscriptionID != *opts.SubscriptionID {
			continue
		}
		if opts.Status != nil && row.Status != *opts.Status {
			continue
		}
		if opts.EventType != "" {
			evt, ok := s.events[row.EventID.String()]
			if !ok || evt.Type != opts.EventType {
				continue
			}
		}
		if opts.From != nil && row.AttemptedAt.Before(*opts.From) {
			continue
		}
		if opts.To != nil && row.AttemptedAt.After(*opts.To) {
			continue
		}
		cp := *row
		all = append(all, &cp)
	}

	sort.Slice(all, func(i, j int) bool {
		return all[i].AttemptedAt.After(all[j].AttemptedAt)
	})

	return paginate(all, opts.Offset, opts.Limit), nil
}

func (s *Store) ListLogsByEvent(_ context.Context, eventID id.ID) ([]*dlog.Log, error) {
	return s.ListLogs(context.Background(), dlog.ListOpts{EventID: &eventID})
}

// ==================== Schema Store ====================

func (s *Store) PutSchema(_ context.Context, sch *catalog.Schema) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *sch
	if existing, ok := s.schemas[sch.EventType]; ok {
		cp.CreatedAt = existing.CreatedAt
		cp.UpdatedAt = time.Now().UTC()
	}
	s.schemas[sch.EventType] = &cp
	return nil
}

func (s *Store) GetSchema(_ context.Context, eventType string) (*catalog.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sch, ok := s.schemas[eventType]
	if !ok {
		return nil, catalog.ErrSchemaNotFound
	}
	cp := *sch
	return &cp, nil
}

func (s *Store) ListSchemas(context.Context) ([]*catalog.Schema, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*catalog.Schema, 0, len(s.schemas))
	for _, sch := range s.schemas {
		cp := *sch
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].EventType < out[j].EventType
	})
	return out, nil
}

func (s *Store) DeleteSchema(_ context.Context, eventType string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.schemas[eventType]; !ok {
		return catalog.ErrSchemaNotFound
	}
	delete(s.schemas, eventType)
	return nil
}

// ==================== Stats ====================

func (s *Store) Stats(context.Context) (*store.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := &store.Stats{
		EventsTotal: int64(len(s.events)),
	}
	for _, sub := range s.subs {
		st.SubscriptionsTotal++
		if sub.Active {
			st.SubscriptionsActive++
		} else {
			st.SubscriptionsInactive++
		}
	}
	for _, row := range s.logs {
		st.DeliveriesTotal++
		switch row.Status {
		case dlog.StatusSuccess:
			st.DeliveriesSuccess++
		case dlog.StatusFailed:
			st.DeliveriesFailed++
		case dlog.StatusPending:
			st.DeliveriesPending++
		}
	}
	return st, nil
}

func paginate[T any](items []*T, offset, limit int) []*T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
