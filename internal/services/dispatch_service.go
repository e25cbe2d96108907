// Package services – DispatchService
//
// This file implements the DispatchService, which broadcasts one notification
// payload to every stored push subscription and self-heals the store by
// pruning endpoints the push service reports as permanently gone.
//
// The fan-out is one pass, best effort: every subscription gets exactly one
// encrypted send attempt, attempts run concurrently and independently, and a
// failure against one endpoint never blocks or fails the others. Callers get
// a per-subscription result list to log or display; no automatic retry.
package services

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"sync"
	"time"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/nugsa/go-platform-backend/internal/domain"
	"github.com/nugsa/go-platform-backend/internal/repo"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Notification is the payload displayed by the browser service worker.
// Icon and URL are optional; URL is where a click on the notification lands.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon,omitempty"`
	URL   string `json:"url,omitempty"`
}

// DeliveryOutcome classifies one send attempt. The pruning rule hangs off
// this single tagged value instead of raw status codes scattered through the
// logic: only OutcomeGone mutates the store.
type DeliveryOutcome string

const (
	// OutcomeDelivered: the push service accepted the message.
	OutcomeDelivered DeliveryOutcome = "delivered"
	// OutcomeRejected: the send failed for a presumed-transient reason; the
	// subscription is kept.
	OutcomeRejected DeliveryOutcome = "rejected"
	// OutcomeGone: the push service reported the endpoint permanently
	// invalid; the subscription row is deleted as a side effect.
	OutcomeGone DeliveryOutcome = "gone"
)

// DispatchResult is one entry of the per-subscription result list.
type DispatchResult struct {
	// ID is the subscription row id the attempt was addressed to.
	ID string `json:"id"`
	// Status is the coarse promise-style verdict: "fulfilled" or "rejected".
	Status string `json:"status"`
	// Outcome is the tagged classification driving the pruning rule.
	Outcome DeliveryOutcome `json:"outcome"`
	// Error holds the failure detail for rejected/gone attempts.
	Error string `json:"error,omitempty"`
}

const (
	statusFulfilled = "fulfilled"
	statusRejected  = "rejected"
)

// WebPushSender performs one encrypted send. It matches the signature of
// webpush.SendNotificationWithContext so the real implementation can be used
// directly and tests can inject a fake without any network or key material.
type WebPushSender func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

var (
	// dispatchDeliveries counts send attempts by outcome.
	dispatchDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "push_deliveries_total",
			Help: "Total web push send attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// dispatchPruned counts subscriptions removed because the push service
	// reported them gone.
	dispatchPruned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "push_subscriptions_pruned_total",
			Help: "Subscriptions deleted after the push service reported them gone.",
		},
	)
)

func init() {
	prometheus.MustRegister(dispatchDeliveries, dispatchPruned)
}

// DispatchService broadcasts notifications to every stored subscription.
type DispatchService struct {
	// DB is the GORM handle used to load and prune subscriptions.
	DB *gorm.DB

	// VAPID key pair and contact claim; dispatch refuses to run without the
	// full pair.
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string

	// TTL is how long the push service may queue an undelivered message.
	TTL time.Duration

	// Send performs one encrypted push send. Defaults to
	// webpush.SendNotificationWithContext when nil.
	Send WebPushSender
}

// Configured reports whether the full VAPID key pair is present.
func (s *DispatchService) Configured() bool {
	return s.VAPIDPublicKey != "" && s.VAPIDPrivateKey != ""
}

// Dispatch broadcasts n to all stored subscriptions and returns one result
// per subscription, in registration order.
//
// Failure semantics:
//   - Missing VAPID configuration: ErrVAPIDNotConfigured, nothing sent.
//   - Empty title: ErrInvalidNotification, nothing sent.
//   - Store read failure: the error, nothing sent (no partial dispatch).
//   - Per-endpoint failures: isolated; recorded in the result list. A 404 or
//     410 from the push service classifies the attempt as OutcomeGone and
//     deletes that subscription row; all other failures leave the store
//     untouched.
func (s *DispatchService) Dispatch(ctx context.Context, n Notification) ([]DispatchResult, error) {
	tr := otel.Tracer("services/DispatchService")
	ctx, span := tr.Start(ctx, "Dispatch",
		trace.WithAttributes(attribute.String("notification.title", n.Title)),
	)
	defer span.End()

	if !s.Configured() {
		return nil, ErrVAPIDNotConfigured
	}
	if n.Title == "" {
		return nil, ErrInvalidNotification
	}

	subs, err := repo.ListSubscriptions(ctx, s.DB)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int("subscriptions.count", len(subs)))

	payload, err := json.Marshal(n)
	if err != nil {
		return nil, err
	}

	send := s.Send
	if send == nil {
		send = webpush.SendNotificationWithContext
	}

	results := make([]DispatchResult, len(subs))
	var wg sync.WaitGroup
	for i, sub := range subs {
		wg.Add(1)
		go func(i int, sub domain.PushSubscription) {
			defer wg.Done()
			results[i] = s.sendOne(ctx, send, payload, sub)
		}(i, sub)
	}
	wg.Wait()

	return results, nil
}

// sendOne attempts a single encrypted send and classifies the outcome. It
// never returns an error: every failure mode is folded into the result entry
// so the caller's fan-out stays isolated.
func (s *DispatchService) sendOne(ctx context.Context, send WebPushSender, payload []byte, sub domain.PushSubscription) DispatchResult {
	resp, err := send(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256dh,
			Auth:   sub.Auth,
		},
	}, &webpush.Options{
		Subscriber:      s.Subscriber,
		VAPIDPublicKey:  s.VAPIDPublicKey,
		VAPIDPrivateKey: s.VAPIDPrivateKey,
		TTL:             int(s.TTL.Seconds()),
	})
	if err != nil {
		dispatchDeliveries.WithLabelValues(string(OutcomeRejected)).Inc()
		log.Warn().Str("subscription_id", sub.ID).Err(err).Msg("push send failed")
		return DispatchResult{ID: sub.ID, Status: statusRejected, Outcome: OutcomeRejected, Error: err.Error()}
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		// Endpoint permanently invalid: prune the row. Prune failures are
		// logged but do not change the attempt's classification.
		if derr := repo.DeleteSubscription(ctx, s.DB, sub.ID); derr != nil {
			log.Error().Str("subscription_id", sub.ID).Err(derr).Msg("pruning dead subscription failed")
		} else {
			dispatchPruned.Inc()
		}
		dispatchDeliveries.WithLabelValues(string(OutcomeGone)).Inc()
		log.Info().Str("subscription_id", sub.ID).Int("status", resp.StatusCode).Msg("pruned gone subscription")
		return DispatchResult{
			ID:      sub.ID,
			Status:  statusRejected,
			Outcome: OutcomeGone,
			Error:   http.StatusText(resp.StatusCode),
		}

	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		dispatchDeliveries.WithLabelValues(string(OutcomeDelivered)).Inc()
		return DispatchResult{ID: sub.ID, Status: statusFulfilled, Outcome: OutcomeDelivered}

	default:
		dispatchDeliveries.WithLabelValues(string(OutcomeRejected)).Inc()
		log.Warn().Str("subscription_id", sub.ID).Int("status", resp.StatusCode).Msg("push service rejected send")
		return DispatchResult{
			ID:      sub.ID,
			Status:  statusRejected,
			Outcome: OutcomeRejected,
			Error:   "unexpected push service status " + http.StatusText(resp.StatusCode),
		}
	}
}
