// Package services defines the business logic for push subscriptions,
// notification dispatch, and the streaming chat relay. This file centralizes
// common service-level error values so that they can be consistently returned
// by service methods and checked by callers.
//
// These errors are intended for internal use by the service layer; translation
// into user-facing messages or HTTP status codes is performed at the handler
// layer.
package services

import "errors"

// Push-related errors.
var (
	// ErrInvalidSubscription is returned when a subscription registration is
	// missing its endpoint or either encryption key.
	ErrInvalidSubscription = errors.New("subscription requires endpoint, p256dh and auth")

	// ErrVAPIDNotConfigured indicates the server-side VAPID key pair is
	// absent. Dispatch fails fast with this error before any send.
	ErrVAPIDNotConfigured = errors.New("vapid key pair not configured")

	// ErrInvalidNotification is returned when a dispatch payload has no title.
	ErrInvalidNotification = errors.New("notification title is required")
)

// Chat-related errors.
var (
	// ErrProviderNotConfigured indicates the completion provider credential is
	// absent. The chat endpoint fails with this before opening a stream.
	ErrProviderNotConfigured = errors.New("completion provider not configured")

	// ErrEmptyConversation is returned when a chat request carries no messages.
	ErrEmptyConversation = errors.New("conversation is empty")

	// ErrContextTooLarge is returned when the combined reference documents
	// exceed the configured size cap. The request is rejected rather than
	// silently truncated.
	ErrContextTooLarge = errors.New("reference documents exceed size limit")
)
