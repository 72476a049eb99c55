package subscription

import (
	"context"
	"errors"
	"log/slog"
	"net/url"

	"github.com/hookline/hookline/id"
	"github.com/hookline/hookline/internal/entity"
	"github.com/hookline/hookline/signature"
)

// ErrInvalidTargetURL is returned when a target URL is not an absolute
// HTTP(S) URL.
var ErrInvalidTargetURL = errors.New("subscription: target_url must be an absolute http(s) URL")

// ErrInvalidEventType is returned when an event type fails the name grammar.
var ErrInvalidEventType = errors.New("subscription: invalid event_type")

// validateTarget rejects anything that is not an absolute http/https URL.
func validateTarget(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return ErrInvalidTargetURL
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return ErrInvalidTargetURL
	}
	return nil
}

// Service provides subscription management operations.
type Service struct {
	store    Store
	validate func(string) bool
	logger   *slog.Logger
}

// NewService creates a new subscription service. validType checks the event
// type name grammar.
func NewService(store Store, validType func(string) bool, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    store,
		validate: validType,
		logger:   logger,
	}
}

// Create registers a new subscription. The generated secret is present on
// the returned value; callers must surface it exactly once.
func (svc *Service) Create(ctx context.Context, in Input) (*Subscription, error) {
	if !svc.validate(in.EventType) {
		return nil, ErrInvalidEventType
	}
	if err := validateTarget(in.TargetURL); err != nil {
		return nil, err
	}

	active := true
	if in.Active != nil {
		active = *in.Active
	}

	sub := &Subscription{
		Entity:    entity.New(),
		ID:        id.NewSubscriptionID(),
		EventType: in.EventType,
		TargetURL: in.TargetURL,
		Secret:    signature.GenerateSecret(),
		Active:    active,
	}

	if err := svc.store.CreateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	svc.logger.InfoContext(ctx, "subscription created",
		"subscription_id", sub.ID,
		"event_type", sub.EventType,
	)

	return sub, nil
}

// Get returns a subscription by ID.
func (svc *Service) Get(ctx context.Context, subID id.ID) (*Subscription, error) {
	return svc.store.GetSubscription(ctx, subID)
}

// Update patches an existing subscription. The secret never changes.
func (svc *Service) Update(ctx context.Context, subID id.ID, in Input) (*Subscription, error) {
	sub, err := svc.store.GetSubscription(ctx, subID)
	if err != nil {
		return nil, err
	}

	if in.EventType != "" {
		if !svc.validate(in.EventType) {
			return nil, ErrInvalidEventType
		}
		sub.EventType = in.EventType
	}
	if in.TargetURL != "" {
		if err := validateTarget(in.TargetURL); err != nil {
			return nil, err
		}
		sub.TargetURL = in.TargetURL
	}
	if in.Active != nil {
		sub.Active = *in.Active
	}

	if err := svc.store.UpdateSubscription(ctx, sub); err != nil {
		return nil, err
	}

	return sub, nil
}

// Delete removes a subscription. Existing delivery logs survive.
func (svc *Service) Delete(ctx context.Context, subID id.ID) error {
	return svc.store.DeleteSubscription(ctx, subID)
}

// List returns subscriptions matching the given options.
func (svc *Service) List(ctx context.Context, opts ListOpts) ([]*Subscription, error) {
	return svc.store.ListSubscriptions(ctx, opts)
}
