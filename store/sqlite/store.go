// Package sqlite implements store.Store on SQLite via the Grove ORM. Suited
// to single-node deployments and local development.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
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

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// Open opens (creating if needed) the SQLite database at path and returns a
// store over the connection.
func Open(ctx context.Context, path string) (*Store, error) {
	drv := sqlitedriver.New()
	if err := drv.Open(ctx, path); err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	db, err := grove.Open(drv)
	if err != nil {
		return nil, fmt.Errorf("sqlite: open: %w", err)
	}
	return New(db), nil
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("hookline/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("hookline/sqlite: migration failed: %w", err)
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
	res, err := s.sdb.NewInsert(m).
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
	err := s.sdb.NewSelect(m).
		Where("id = ?", evtID.String()).
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
	err := s.sdb.NewSelect(m).
		Where("idempotency_key = ?", key).
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
	q := s.sdb.NewSelect(&models)

	if opts.Type != "" {
		q = q.Where("event_type = ?", opts.Type)
	}
	if opts.From != nil {
		q = q.Where("received_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("received_at <= ?", *opts.To)
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
		res, err := s.sdb.NewInsert(m).
			OnConflict("(event_type, target_url) WHERE is_active = 1 DO NOTHING").
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

	_, err := s.sdb.NewInsert(m).Exec(ctx)
	return err
}

func (s *Store) GetSubscription(ctx context.Context, subID id.ID) (*subscription.Subscription, error) {
	m := new(subscriptionModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", subID.String()).
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
		count, err := s.sdb.NewSelect((*subscriptionModel)(nil)).
			Where("event_type = ?", sub.EventType).
			Where("target_url = ?", sub.TargetURL).
			Where("is_active = 1").
			Where("id != ?", sub.ID.String()).
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
	res, err := s.sdb.NewUpdate(m).
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
	res, err := s.sdb.NewDelete((*subscriptionModel)(nil)).
		Where("id = ?", subID.String()).
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
	q := s.sdb.NewSelect(&models)

	if opts.EventType != "" {
		q = q.Where("event_type = ?", opts.EventType)
	}
	if opts.Active != nil {
		q = q.Where("is_active = ?", *opts.Active)
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
	if err := s.sdb.NewSelect(&models).
		Where("event_type = ?", eventType).
		Where("is_active = 1").
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
	if _, err := s.sdb.NewInsert(toDeliveryLogModel(row)).Exec(ctx); err != nil {
		return nil, err
	}
	return row, nil
}

func (s *Store) FinishLog(ctx context.Context, logID id.ID, status dlog.Status, responseCode *int, responseBody, errorMessage string) error {
	res, err := s.sdb.NewUpdate((*deliveryLogModel)(nil)).
		Set("status = ?", string(status)).
		Set("response_status_code = ?", responseCode).
		Set("response_body = ?", dlog.TruncateBody(responseBody)).
		Set("error_message = ?", errorMessage).
		Set("updated_at = ?", time.Now().UTC()).
		Where("id = ?", logID.String()).
		Where("status = ?", string(dlog.StatusPending)).
		Exec(ctx)
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		if _, getErr := s.GetLog(ctx, logID); getErr != nil {
			return getErr
		}
		return dlog.ErrIllegalTransition
	}
	return nil
}

func (s *Store) GetLog(ctx context.Context, logID id.ID) (*dlog.Log, error) {
	m := new(deliveryLogModel)
	err := s.sdb.NewSelect(m).
		Where("id = ?", logID.String()).
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
	q := s.sdb.NewSelect(&models)

	if opts.EventID != nil {
		q = q.Where("event_id = ?", opts.EventID.String())
	}
	if opts.SubscriptionID != nil {
		q = q.Where("subscription_id = ?", opts.SubscriptionID.String())
	}
	if opts.Status != nil {
		q = q.Where("status = ?", string(*opts.Status))
	}
	if opts.From != nil {
		q = q.Where("attempted_at >= ?", *opts.From)
	}
	if opts.To != nil {
		q = q.Where("attempted_at <= ?", *opts.To)
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
	err := s.sdb.NewRaw(`
		SELECT l.* FROM hl_delivery_logs l
		JOIN hl_events e ON e.id = l.event_id
		WHERE e.event_type = ?
		ORDER BY l.attempted_at DESC
		LIMIT ? OFFSET ?
	`, opts.EventType, limit, opts.Offset).Scan(ctx, &models)
	if err != nil {
		return nil, err
	}
	return fromDeliveryLogModels(models)
}

func (s *Store) ListLogsByEvent(ctx context.Context, eventID id.ID) ([]*dlog.Log, error) {
	var models []deliveryLogModel
	if err := s.sdb.NewSelect(&models).
		Where("event_id = ?", eventID.String()).
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
	_, err := s.sdb.NewInsert(m).
		OnConflict("(event_type) DO UPDATE").
		Set("schema = EXCLUDED.schema").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	return err
}

func (s *Store) GetSchema(ctx context.Context, eventType string) (*catalog.Schema, error) {
	m := new(eventSchemaModel)
	err := s.sdb.NewSelect(m).
		Where("event_type = ?", eventType).
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
	if err := s.sdb.NewSelect(&models).
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
	res, err := s.sdb.NewDelete((*eventSchemaModel)(nil)).
		Where("event_type = ?", eventType).
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
	err := s.sdb.NewRaw(`
		SELECT
			(SELECT COUNT(*) FROM hl_events)                                 AS events_total,
			(SELECT COUNT(*) FROM hl_subscriptions)                          AS subscriptions_total,
			(SELECT COUNT(*) FROM hl_subscriptions WHERE is_active = 1)      AS subscriptions_active,
			(SELECT COUNT(*) FROM hl_delivery_logs)                          AS deliveries_total,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'success') AS deliveries_success,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'failed')  AS deliveries_failed,
			(SELECT COUNT(*) FROM hl_delivery_logs WHERE status = 'pending') AS deliveries_pending
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
