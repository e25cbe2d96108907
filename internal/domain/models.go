// Package domain defines the persistence models for the push delivery
// pipeline. These types are mapped with GORM and form the core data layer
// of the backend.
package domain

import (
	"time"
)

// PushSubscription represents one browser endpoint capable of receiving
// encrypted web push messages. A row is created when a browser registers its
// subscription and removed when the browser unsubscribes or when a dispatch
// reports the endpoint as permanently gone.
//
// Fields:
//   - ID: stable UUID primary key (char(36)).
//   - Endpoint: opaque URL issued by the browser's push service. Unique across
//     all rows; re-registering the same endpoint is treated as already
//     subscribed, not as an error.
//   - P256dh / Auth: base64-encoded key material required to encrypt messages
//     addressed to this endpoint.
//   - CreatedAt / UpdatedAt: timestamps managed by GORM.
//
// Rows are deleted for real, not soft-deleted: a pruned or unsubscribed
// endpoint must be able to re-register, and a soft-deleted row would still
// occupy the unique endpoint index.
//
// There is deliberately no user linkage: dispatch is a broadcast to every
// stored endpoint.
type PushSubscription struct {
	ID        string    `json:"id"       gorm:"type:char(36);primaryKey"`
	Endpoint  string    `json:"endpoint" gorm:"type:text;not null;uniqueIndex:ux_subscription_endpoint"`
	P256dh    string    `json:"p256dh"   gorm:"type:varchar(255);not null"`
	Auth      string    `json:"auth"     gorm:"type:varchar(255);not null"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName returns the database table name for PushSubscription.
func (PushSubscription) TableName() string { return "push_subscriptions" }
