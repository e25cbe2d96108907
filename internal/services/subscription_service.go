// Package services – SubscriptionService
//
// This file implements the SubscriptionService, which manages the lifecycle
// of browser push subscriptions. It validates registration payloads, makes
// subscribe idempotent on the endpoint (a browser re-registering the same
// endpoint is already subscribed, not an error), and coordinates repository
// operations for registering, removing, probing, and listing subscriptions.
//
// Observability: public methods are OpenTelemetry-instrumented; spans carry
// pagination parameters where applicable. Endpoint URLs are capability URLs
// and never appear in span attributes.
package services

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/nugsa/go-platform-backend/internal/domain"
	"github.com/nugsa/go-platform-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SubscriptionRepo defines the repository contract required by
// SubscriptionService. Implementations are responsible for persistence of
// subscription rows and must report duplicate endpoints as repo.ErrDuplicate.
type SubscriptionRepo interface {
	// CreateSubscription inserts a new subscription row.
	CreateSubscription(ctx context.Context, db *gorm.DB, endpoint, p256dh, auth string) (*domain.PushSubscription, error)

	// GetSubscriptionByEndpoint fetches a subscription by its endpoint URL.
	GetSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (*domain.PushSubscription, error)

	// DeleteSubscriptionByEndpoint removes a subscription and returns the
	// affected-row count (0 when the endpoint was never registered).
	DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (int64, error)

	// CountSubscriptions returns the total number of stored subscriptions.
	CountSubscriptions(ctx context.Context, db *gorm.DB) (int64, error)

	// ListSubscriptionsPage returns a page of subscriptions.
	ListSubscriptionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PushSubscription, error)
}

// SubscriptionService provides subscription lifecycle operations. It enforces
// payload validation and the endpoint-uniqueness contract.
type SubscriptionService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the subscription repository used by this service.
	Repo SubscriptionRepo
}

// NewSubscriptionService constructs a SubscriptionService.
func NewSubscriptionService(db *gorm.DB, r SubscriptionRepo) *SubscriptionService {
	return &SubscriptionService{DB: db, Repo: r}
}

// Subscribe registers a browser endpoint with its encryption keys. The
// second return value reports whether a new row was created: re-registering
// an existing endpoint returns the stored row with created=false and no
// error (idempotent re-subscribe).
func (s *SubscriptionService) Subscribe(ctx context.Context, endpoint, p256dh, auth string) (*domain.PushSubscription, bool, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Subscribe")
	defer span.End()

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" || strings.TrimSpace(p256dh) == "" || strings.TrimSpace(auth) == "" {
		return nil, false, ErrInvalidSubscription
	}

	sub, err := s.Repo.CreateSubscription(ctx, s.DB, endpoint, p256dh, auth)
	if err == nil {
		span.SetAttributes(attribute.Bool("subscription.created", true))
		return sub, true, nil
	}
	if !errors.Is(err, repo.ErrDuplicate) {
		return nil, false, err
	}

	// Already registered: surface the existing row as success.
	existing, err := s.Repo.GetSubscriptionByEndpoint(ctx, s.DB, endpoint)
	if err != nil {
		return nil, false, err
	}
	span.SetAttributes(attribute.Bool("subscription.created", false))
	return existing, false, nil
}

// Unsubscribe removes the subscription for endpoint. Removing an endpoint
// that was never registered is a no-op; the return value reports whether a
// row was actually deleted.
func (s *SubscriptionService) Unsubscribe(ctx context.Context, endpoint string) (bool, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Unsubscribe")
	defer span.End()

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return false, ErrInvalidSubscription
	}

	n, err := s.Repo.DeleteSubscriptionByEndpoint(ctx, s.DB, endpoint)
	if err != nil {
		return false, err
	}
	span.SetAttributes(attribute.Bool("subscription.removed", n > 0))
	return n > 0, nil
}

// Status reports whether endpoint is currently registered.
func (s *SubscriptionService) Status(ctx context.Context, endpoint string) (bool, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "Status")
	defer span.End()

	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return false, ErrInvalidSubscription
	}

	_, err := s.Repo.GetSubscriptionByEndpoint(ctx, s.DB, endpoint)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ListPage returns a page of stored subscriptions together with the total
// count. It applies defaults for invalid page/pageSize.
func (s *SubscriptionService) ListPage(ctx context.Context, page, pageSize int) ([]domain.PushSubscription, int64, error) {
	tr := otel.Tracer("services/SubscriptionService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountSubscriptions(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.PushSubscription{}, 0, nil
	}

	items, err := s.Repo.ListSubscriptionsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}
