// Package postgres implements store.Store on PostgreSQL via the Grove ORM.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

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

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// Open connects to PostgreSQL using the given DSN and returns a store over
// the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	drv := pgdriver.New()
	if err := drv.Open(ctx, dsn); err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("hookline/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("hookline/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// ==================== Event Store ====================

func (s *Store) CreateEvent(ctx context.Context, evt *event.Event) error {
	m := toEventModel(evt)

	// ON CONFLICT DO NOTHING makes the unique key the serialization point:
	// zero rows affected means another request already holds the key.
	res, err := s.pg.NewInsert(m).
		OnConflict("(idempotency_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return event.ErrDuplicateIdempotencyKey
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, evtID id.ID) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", evtID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) GetEventByIdempotencyKey(ctx context.Context, key string) (*event.Event, error) {
	m := new(eventModel)
	err := s.pg.NewSelect(m).
		Where("idempotency_key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, event.ErrNotFound
		}
		return nil, err
	}
	return fromEventModel(m)
}

func (s *Store) ListEvents(ctx context.Context, opts event.ListOpts) ([]*event.Event, error) {
	var models []eventModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.Type != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.Type)
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("received_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("received_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("received_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*event.Event, len(models))
	for i := range models {
		evt, err := fromEventModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = evt
	}
	return result, nil
}

// ==================== Subscription Store ====================

func (s *Store) CreateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	m := toSubscriptionModel(sub)

	if sub.Active {
		// The partial unique index on active (event_type, target_url) pairs
		// rejects duplicates at insert time.
		res, err := s.pg.NewInsert(m).
			OnConflict("(event_type, target_url) WHERE is_active DO NOTHING").
			Exec(ctx)
		if err != nil {
			return err
		}
		rows, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if rows == 0 {
			return subscription.ErrDuplicate
		}
		return nil
	}

	_, err := s.pg.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", subID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, subscription.ErrNotFound
		}
		return nil, err
	}
	return fromSubscriptionModel(m)
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *subscription.Subscription) error {
	if sub.Active {
		// Pre-check the active pair so reactivation collides cleanly instead
		// of surfacing a driver constraint error.
		count, err := s.pg.NewSelect((*subscriptionModel)(nil)).
			Where("event_type = $1", sub.EventType).
			Where("target_url = $2", sub.TargetURL).
			Where("is_active = true").
			Where("id != $3", sub.ID.String()).
			Count(ctx)
		if err != nil {
			return err
		}
		if count > 0 {
			return subscription.ErrDuplicate
		}
	}

	m := toSubscriptionModel(sub)
	m.UpdatedAt = time.Now().UTC()
	res, err := s.pg.NewUpdate(m).
		WherePK().
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSubscription(ctx context.Context, subID id.ID) error {
	res, err := s.pg.NewDelete((*subscriptionModel)(nil)).
		Where("id = $1", subID.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return subscription.ErrNotFound
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, opts subscription.ListOpts) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.EventType != "" {
		argIdx++
		q = q.Where(fmt.Sprintf("event_type = $%d", argIdx), opts.EventType)
	}
	if opts.Active != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("is_active = $%d", argIdx), *opts.Active)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("created_at ASC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

func (s *Store) ListActiveSubscriptions(ctx context.Context, eventType string) ([]*subscription.Subscription, error) {
	var models []subscriptionModel
	if err := s.pg.NewSelect(&models).
		Where("event_type = $1", eventType).
		Where("is_active = true").
		OrderExpr("created_at ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*subscription.Subscription, len(models))
	for i := range models {
		sub, err := fromSubscriptionModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = sub
	}
	return result, nil
}

// ==================== Delivery Log Store ====================

func (s *Store) CreateLog(ctx context.Context, eventID, subscriptionID id.ID, attempt int) (*dlog.Log, error) {
	row := &dlog.Log{
		Entity:         entity.New(),
		ID:             id.NewDeliveryLogID(),
		EventID:        eventID,
		SubscriptionID: subscriptionID,
		Status:         dlog.StatusPending,
		AttemptCount:   attempt,
		AttemptedAt:    time.Now().UTC(),
	}
	if _, err := s.pg.NewInsert(toDeliveryLogModel(row)).Exec(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) FinishLog(ctx context.Context, logID id.ID, status dlog.Status, responseCode *int, responseBody, errorMessage string) error {
	res, err := s.pg.NewUpdate((*deliveryLogModel)(nil)).
		Set("status = $1", string(status)).
		Set("response_status_code = $2", responseCode).
		Set("response_body = $3", dlog.TruncateBody(responseBody)).
		Set("error_message = $4", errorMessage).
		Set("updated_at = $5", time.Now().UTC()).
		Where("id = $6", logID.String()).
		Where("status = $7", string(dlog.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		// Distinguish a missing row from an already-terminal one.
		if _, getErr := s.GetLog(ctx, logID); getErr != nil {
			return getErr
		}
		return dlog.ErrIllegalTransition
	}
	return nil
}

func (s *Store) GetLog(ctx context.Context, logID id.ID) (*dlog.Log, error) {
	m := new(deliveryLogModel)
	err := s.pg.NewSelect(m).
		Where("id = $1", logID.String()).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, dlog.ErrNotFound
		}
		return nil, err
	}
	return fromDeliveryLogModel(m)
}

func (s *Store) ListLogs(ctx context.Context, opts dlog.ListOpts) ([]*dlog.Log, error) {
	if opts.EventType != "" {
		return s.listLogsByEventType(ctx, opts)
	}

	var models []deliveryLogModel
	q := s.pg.NewSelect(&models)

	argIdx := 0
	if opts.EventID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("event_id = $%d", argIdx), opts.EventID.String())
	}
	if opts.SubscriptionID != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("subscription_id = $%d", argIdx), opts.SubscriptionID.String())
	}
	if opts.Status != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("status = $%d", argIdx), string(*opts.Status))
	}
	if opts.From != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("attempted_at >= $%d", argIdx), *opts.From)
	}
	if opts.To != nil {
		argIdx++
		q = q.Where(fmt.Sprintf("attempted_at <= $%d", argIdx), *opts.To)
	}
	if opts.Limit > 0 {
		q = q.Limit(opts.Limit)
	}
	if opts.Offset > 0 {
		q = q.Offset(opts.Offset)
	}
	q = q.OrderExpr("attempted_at DESC")

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return fromDeliveryLogModels(models)
}

// listLogsByEventType joins against hl_events for the event-type filter.
func (s *Store) listLogsByEventType(ctx context.Context, opts dlog.ListOpts) ([]*dlog.Log, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	var models []deliveryLogModel
	err := s.pg.NewRaw(`
		SELECT l.* FROM hl_delivery_logs l
		JOIN hl_events e ON e.id = l.event_id
		WHERE e.event_type = $1
		ORDER BY l.attempted_at DESC
		LIMIT $2 OFFSET $3
	`, opts.EventType, limit, opts.Offset).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromDeliveryLogModels(models)
}

func (s *Store) ListLogsByEvent(ctx context.Context, eventID id.ID) ([]*dlog.Log, error) {
	var models []deliveryLogModel
	if err := s.pg.NewSelect(&models).
		Where("event_id = $1", eventID.String()).
		OrderExpr("attempted_at DESC").
		Scan(ctx); err != nil {
		return nil, err
	}
	return fromDeliveryLogModels(models)
}

func fromDeliveryLogModels(models []deliveryLogModel) ([]*dlog.Log, error) {
	result := make([]*dlog.Log, len(models))
	for i := range models {
		row, err := fromDeliveryLogModel(&models[i])
		if err != nil {
			return nil, err
		}
		result[i] = row
	}
	return result, nil
}

// ==================== Schema Store ====================

func (s *Store) PutSchema(ctx context.Context, sch *catalog.Schema) error {
	m := toEventSchemaModel(sch)
	_, err := s.pg.NewInsert(m).
		OnConflict("(event_type) DO UPDATE").
		Set("schema = EXCLUDED.schema").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetSchema(ctx context.Context, eventType string) (*catalog.Schema, error) {
	m := new(eventSchemaModel)
	err := s.pg.NewSelect(m).
		Where("event_type = $1", eventType).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return nil, catalog.ErrSchemaNotFound
		}
		return nil, err
	}
	return fromEventSchemaModel(m), nil
}

func (s *Store) ListSchemas(ctx context.Context) ([]*catalog.Schema, error) {
	var models []eventSchemaModel
	if err := s.pg.NewSelect(&models).
		OrderExpr("event_type ASC").
		Scan(ctx); err != nil {
		return nil, err
	}

	result := make([]*catalog.Schema, len(models))
	for i := range models {
		result[i] = fromEventSchemaModel(&models[i])
	}
	return result, nil
}

func (s *Store) DeleteSchema(ctx context.Context, eventType string) error {
	res, err := s.pg.NewDelete((*eventSchemaModel)(nil)).
		Where("event_type = $1", eventType).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return catalog.ErrSchemaNotFound
	}
	return nil
}

// ==================== Stats ====================

type statsRow struct {
	EventsTotal         int64 `grove:"events_total"`
	SubscriptionsTotal  int64 `grove:"subscriptions_total"`
	SubscriptionsActive int64 `grove:"subscriptions_active"`
	DeliveriesTotal     int64 `grove:"deliveries_total"`
	DeliveriesSuccess   int64 `grove:"deliveries_success"`
	DeliveriesFailed    int64 `grove:"deliveries_failed"`
	DeliveriesPending   int64 `grove:"deliveries_pending"`
}

func (s *Store) Stats(ctx context.Context) (*store.Stats, error) {
	var rows []statsRow
	err := s.pg.NewRaw(`
		SELECT
			(SELECT COUNT(*) FROM hl_events)                                          AS events_total,
			(SELECT COUNT(*) FROM hl_subscriptions)                                   AS subscriptions_total,
			(SELECT COUNT(*) FROM hl_subscriptions WHERE is_active)                   AS subscriptions_active,
			(SELECT COUNT(*) FROM hl_delivery_logs)                                   AS deliveries_total,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'success')          AS deliveries_success,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'failed')           AS deliveries_failed,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'pending')          AS deliveries_pending
	`).Scan(ctx, &rows)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return &store.Stats{}, nil
	}

	r := rows[0]
	return &store.Stats{
		EventsTotal:           r.EventsTotal,
		SubscriptionsTotal:    r.SubscriptionsTotal,
		SubscriptionsActive:   r.SubscriptionsActive,
		SubscriptionsInactive: r.SubscriptionsTotal - r.SubscriptionsActive,
		DeliveriesTotal:       r.DeliveriesTotal,
		DeliveriesSuccess:     r.DeliveriesSuccess,
		DeliveriesFailed:      r.DeliveriesFailed,
		DeliveriesPending:     r.DeliveriesPending,
	}, nil
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
