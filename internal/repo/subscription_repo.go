// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// PushSubscription model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
//
// Error semantics:
//   - When a subscription is not found, functions return
//     gorm.ErrRecordNotFound (also exported here as ErrNotFound).
//   - A unique violation on the endpoint column surfaces as ErrDuplicate so
//     the service layer can treat re-registration as already-subscribed.
//   - On other DB errors the raw gorm error is propagated.
//
// This repository is wrapped by higher-level services (SubscriptionService,
// DispatchService) which enforce business rules such as idempotent subscribe
// and dead-endpoint pruning.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/nugsa/go-platform-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrDuplicate indicates that a subscription row already exists for the
// given endpoint.
var ErrDuplicate = errors.New("duplicate")

// CreateSubscription inserts a new PushSubscription row for the given
// endpoint and key material. The row ID is a randomly generated UUID and
// CreatedAt is set to UTC.
//
// A unique violation on the endpoint column is reported as ErrDuplicate;
// callers treat that as benign (the endpoint is already registered).
func CreateSubscription(ctx context.Context, db *gorm.DB, endpoint, p256dh, auth string) (*domain.PushSubscription, error) {
	sub := &domain.PushSubscription{
		ID:        uuid.NewString(),
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(sub).Error; err != nil {
		// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
		low := strings.ToLower(err.Error())
		if errors.Is(err, gorm.ErrDuplicatedKey) ||
			strings.Contains(low, "unique constraint failed") ||
			strings.Contains(low, "constraint failed: unique") {
			return nil, ErrDuplicate
		}
		return nil, err
	}
	return sub, nil
}

// ListSubscriptions returns every stored subscription, ordered by creation
// time ascending so dispatch results line up with registration order.
// It returns an empty slice when the table is empty.
func ListSubscriptions(ctx context.Context, db *gorm.DB) ([]domain.PushSubscription, error) {
	var out []domain.PushSubscription
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// CountSubscriptions returns the total number of stored subscriptions.
func CountSubscriptions(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.PushSubscription{}).
		Count(&total).Error
	return total, err
}

// ListSubscriptionsPage returns a paginated slice of subscriptions ordered by
// creation time ascending. Use CountSubscriptions to obtain the total for
// pagination metadata.
//
// The caller is responsible for computing offset and limit (e.g., (page-1)*pageSize).
func ListSubscriptionsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.PushSubscription, error) {
	var out []domain.PushSubscription
	err := db.WithContext(ctx).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// GetSubscriptionByEndpoint fetches a single subscription by its endpoint
// URL. If the record does not exist, it returns ErrNotFound.
func GetSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (*domain.PushSubscription, error) {
	var sub domain.PushSubscription
	err := db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// DeleteSubscription removes a subscription by its primary key. If no rows
// are affected it returns ErrNotFound.
func DeleteSubscription(ctx context.Context, db *gorm.DB, id string) error {
	res := db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&domain.PushSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// DeleteSubscriptionByEndpoint removes a subscription by its endpoint URL.
// Deleting a missing endpoint is not an error: unsubscribe is idempotent, so
// the affected-row count is returned instead (0 or 1).
func DeleteSubscriptionByEndpoint(ctx context.Context, db *gorm.DB, endpoint string) (int64, error) {
	res := db.WithContext(ctx).
		Where("endpoint = ?", endpoint).
		Delete(&domain.PushSubscription{})
	return res.RowsAffected, res.Error
}
