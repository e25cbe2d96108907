// Push notification HTTP handlers.
//
// This file exposes REST endpoints for the web-push subscription lifecycle and
// the broadcast dispatcher:
//   - GET    /push/key                  (public VAPID key for browser subscribe)
//   - POST   /push/subscriptions        (register a browser push subscription)
//   - DELETE /push/subscriptions        (remove a subscription by endpoint)
//   - GET    /push/subscriptions/status (check whether an endpoint is registered)
//   - GET    /push/subscriptions        (admin: list paginated subscriptions)
//   - POST   /push/dispatch             (broadcast a notification to all endpoints)
//
// Handlers are transport-thin:
//   - validate & normalize inputs
//   - delegate to application services (SubscriptionService, DispatchService)
//   - implement conditional responses (ETag) on the admin listing
//
// Subscription endpoints are identified by the opaque URL the browser's push
// service issued. That URL is a bearer capability, so handlers never echo it
// into logs (the logging middleware additionally redacts it defensively).
package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/nugsa/go-platform-backend/internal/domain"
	"github.com/nugsa/go-platform-backend/internal/repo"
	"github.com/nugsa/go-platform-backend/internal/services"
	"github.com/nugsa/go-platform-backend/internal/utils"
)

//
// Service interfaces
//

// SubscriptionService defines push subscription lifecycle operations.
//
// Implementations must be safe for concurrent use and must honor the provided
// context for cancellation and timeouts.
type SubscriptionService interface {
	// Subscribe stores a browser push subscription; re-subscribing with an
	// already-known endpoint succeeds and reports created=false.
	Subscribe(ctx context.Context, endpoint, p256dh, auth string) (*domain.PushSubscription, bool, error)
	// Unsubscribe removes the subscription with the given endpoint, if any.
	Unsubscribe(ctx context.Context, endpoint string) (bool, error)
	// Status reports whether a subscription with the given endpoint exists.
	Status(ctx context.Context, endpoint string) (bool, error)
	// ListPage returns a page of subscriptions and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.PushSubscription, int64, error)
}

// DispatchService defines the broadcast fan-out operation.
type DispatchService interface {
	// Dispatch sends the notification to every stored subscription and returns
	// one result per subscription, pruning endpoints reported as gone.
	Dispatch(ctx context.Context, n services.Notification) ([]services.DispatchResult, error)
}

//
// DTOs
//

// PushKeyResponse carries the public VAPID key browsers need to subscribe.
type PushKeyResponse struct {
	PublicKey string `json:"publicKey" example:"BOrz3K..."`
}

// SubscriptionKeys mirrors the `keys` object of a browser PushSubscription JSON.
type SubscriptionKeys struct {
	P256dh string `json:"p256dh" binding:"required" example:"BNcW4z..."`
	Auth   string `json:"auth" binding:"required" example:"k8JV6sjdbhQ..."`
}

// SubscribeRequest is the JSON payload for registering a push subscription.
// It matches PushSubscription.toJSON() as produced by browsers, so clients can
// post the subscription object unmodified.
type SubscribeRequest struct {
	Endpoint string           `json:"endpoint" binding:"required" example:"https://fcm.googleapis.com/fcm/send/abc123"`
	Keys     SubscriptionKeys `json:"keys" binding:"required"`
}

// SubscribeResponse wraps the stored subscription record.
type SubscribeResponse struct {
	Subscription *domain.PushSubscription `json:"subscription"`
}

// UnsubscribeRequest identifies the subscription to remove by its endpoint URL.
type UnsubscribeRequest struct {
	Endpoint string `json:"endpoint" binding:"required" example:"https://fcm.googleapis.com/fcm/send/abc123"`
}

// SubscriptionStatusResponse reports whether an endpoint is currently registered.
type SubscriptionStatusResponse struct {
	Subscribed bool `json:"subscribed"`
}

// Pagination describes the page window returned by list endpoints.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
	HasNext    bool  `json:"has_next"`
}

// ListSubscriptionsResponse contains a page of subscriptions and pagination metadata.
type ListSubscriptionsResponse struct {
	Subscriptions []domain.PushSubscription `json:"subscriptions"`
	Pagination    Pagination                `json:"pagination"`
}

// DispatchRequest is the notification payload broadcast to every subscription.
type DispatchRequest struct {
	Title string `json:"title" binding:"required" example:"General Assembly"`
	Body  string `json:"body" binding:"required" example:"The meeting starts at 18:00 CET."`
	Icon  string `json:"icon,omitempty" example:"/icons/icon-192.png"`
	URL   string `json:"url,omitempty" example:"/events/general-assembly"`
}

// DispatchResponse reports the outcome of a broadcast, one result per
// subscription in store order.
type DispatchResponse struct {
	Success bool                      `json:"success"`
	Results []services.DispatchResult `json:"results"`
}

//
// Handlers wiring
//

// Handlers groups the HTTP handlers and their service dependencies.
type Handlers struct {
	subSvc      SubscriptionService
	dispatchSvc DispatchService
	chatSvc     ChatStreamer

	// vapidPublicKey is served to browsers via GET /push/key. Empty means
	// push is not configured on this deployment.
	vapidPublicKey string
}

// New constructs and returns a Handlers instance bound to the given services.
func New(subSvc SubscriptionService, dispatchSvc DispatchService, chatSvc ChatStreamer, vapidPublicKey string) *Handlers {
	return &Handlers{
		subSvc:         subSvc,
		dispatchSvc:    dispatchSvc,
		chatSvc:        chatSvc,
		vapidPublicKey: vapidPublicKey,
	}
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

//
// Handlers
//

// GetPushKey godoc
// @ID          getPushKey
// @Summary     Get the public VAPID key
// @Description Returns the server's public VAPID key that browsers use to subscribe
// @Description to push notifications. Returns 503 when push is not configured.
// @Tags        Push
// @Produce     json
//
// @Success     200  {object}  handlers.PushKeyResponse
// @Failure     503  {object}  handlers.ErrorResponse "Push not configured"
// @Router      /push/key [get]
func (h *Handlers) GetPushKey(c *gin.Context) {
	if h.vapidPublicKey == "" {
		fail(c, http.StatusServiceUnavailable, ErrCodeNotConfigured, "push notifications are not configured")
		return
	}
	ok(c, http.StatusOK, PushKeyResponse{PublicKey: h.vapidPublicKey})
}

// Subscribe godoc
// @ID          subscribePush
// @Summary     Register a browser push subscription
// @Description Stores the browser-issued push subscription. Re-subscribing with an
// @Description already-known endpoint is benign and returns 200 with the existing record.
// @Tags        Push
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.SubscribeRequest  true  "Browser PushSubscription JSON"
//
// @Success     201  {object}  handlers.SubscribeResponse "Subscription created"
// @Success     200  {object}  handlers.SubscribeResponse "Already subscribed"
// @Failure     400  {object}  handlers.ErrorResponse     "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse     "Internal error"
// @Router      /push/subscriptions [post]
func (h *Handlers) Subscribe(c *gin.Context) {
	ctx := c.Request.Context()

	var req SubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body exceeds the size limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint and keys required")
		return
	}
	endpoint := strings.TrimSpace(req.Endpoint)

	sub, created, err := h.subSvc.Subscribe(ctx, endpoint, req.Keys.P256dh, req.Keys.Auth)
	if err != nil {
		if err == services.ErrInvalidSubscription {
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint and keys required")
			return
		}
		fail(c, http.StatusInternalServerError, ErrCodeSubscribeFailed, err.Error())
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	ok(c, status, SubscribeResponse{Subscription: sub})
}

// Unsubscribe godoc
// @ID          unsubscribePush
// @Summary     Remove a push subscription
// @Description Deletes the subscription matching the given endpoint. Removing an
// @Description unknown endpoint is benign; the response is 204 either way.
// @Tags        Push
// @Accept      json
//
// @Param       body  body  handlers.UnsubscribeRequest  true  "Endpoint to remove"
//
// @Success     204  "Removed (or was never subscribed)"
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /push/subscriptions [delete]
func (h *Handlers) Unsubscribe(c *gin.Context) {
	ctx := c.Request.Context()

	var req UnsubscribeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint required")
		return
	}

	if _, err := h.subSvc.Unsubscribe(ctx, strings.TrimSpace(req.Endpoint)); err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	noContent(c)
}

// SubscriptionStatus godoc
// @ID          pushSubscriptionStatus
// @Summary     Check push subscription status
// @Description Reports whether the given endpoint is currently registered.
// @Tags        Push
// @Produce     json
//
// @Param       endpoint  query  string  true  "Browser push endpoint URL"
//
// @Success     200  {object}  handlers.SubscriptionStatusResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /push/subscriptions/status [get]
func (h *Handlers) SubscriptionStatus(c *gin.Context) {
	ctx := c.Request.Context()

	endpoint := strings.TrimSpace(c.Query("endpoint"))
	if endpoint == "" {
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "endpoint query parameter required")
		return
	}

	subscribed, err := h.subSvc.Status(ctx, endpoint)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeInternal, err.Error())
		return
	}
	ok(c, http.StatusOK, SubscriptionStatusResponse{Subscribed: subscribed})
}

// ListSubscriptions godoc
// @ID          listPushSubscriptions
// @Summary     List push subscriptions
// @Description Returns a paginated list of stored subscriptions (admin/diagnostic use).
// @Description Supports conditional requests via a weak ETag derived from the store state.
// @Tags        Push
// @Produce     json
//
// @Param       page       query  int  false "Page number"    minimum(1) default(1)
// @Param       page_size  query  int  false "Items per page" minimum(1) maximum(100) default(20)
//
// @Success     200  {object}  handlers.ListSubscriptionsResponse
// @Success     304  "Not modified"
// @Failure     500  {object}  handlers.ErrorResponse "Internal error"
// @Router      /push/subscriptions [get]
func (h *Handlers) ListSubscriptions(c *gin.Context) {
	ctx := c.Request.Context()

	// ETag pre-check (best effort).
	var db *gorm.DB
	if svc, okSvc := h.subSvc.(*services.SubscriptionService); okSvc {
		db = svc.DB
	}
	if db != nil {
		count, maxTS, err := repo.SubscriptionsStats(ctx, db)
		if err == nil {
			var ts int64
			if maxTS != nil {
				ts = maxTS.Unix()
			}
			etag := fmt.Sprintf(`W/"subscriptions:%d:%d"`, count, ts)
			c.Header("ETag", etag)
			if inm := c.GetHeader("If-None-Match"); inm != "" && inm == etag {
				c.Status(http.StatusNotModified)
				return
			}
		}
	}

	page, pageSize := clampPagination(c)

	items, total, err := h.subSvc.ListPage(ctx, page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, err.Error())
		return
	}

	totalPages := int((total + int64(pageSize) - 1) / int64(pageSize))
	ok(c, http.StatusOK, ListSubscriptionsResponse{
		Subscriptions: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
			HasNext:    page < totalPages,
		},
	})
}

// Dispatch godoc
// @ID          dispatchPush
// @Summary     Broadcast a push notification
// @Description Sends the notification to every stored subscription. Delivery is
// @Description best-effort and per-endpoint: one failing endpoint never blocks the
// @Description others. Endpoints the push service reports as permanently gone are
// @Description pruned from the store as a side effect.
// @Tags        Push
// @Accept      json
// @Produce     json
//
// @Param       body  body  handlers.DispatchRequest  true  "Notification payload"
//
// @Success     200  {object}  handlers.DispatchResponse
// @Failure     400  {object}  handlers.ErrorResponse "Bad request"
// @Failure     500  {object}  handlers.ErrorResponse "Configuration or store failure"
// @Router      /push/dispatch [post]
func (h *Handlers) Dispatch(c *gin.Context) {
	ctx := c.Request.Context()

	var req DispatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if isBodyTooLarge(err) {
			fail(c, http.StatusRequestEntityTooLarge, ErrCodePayloadTooLarge, "request body exceeds the size limit")
			return
		}
		fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and body required")
		return
	}

	results, err := h.dispatchSvc.Dispatch(ctx, services.Notification{
		Title: req.Title,
		Body:  req.Body,
		Icon:  req.Icon,
		URL:   req.URL,
	})
	if err != nil {
		switch err {
		case services.ErrVAPIDNotConfigured:
			fail(c, http.StatusInternalServerError, ErrCodeNotConfigured, "push notifications are not configured")
		case services.ErrInvalidNotification:
			fail(c, http.StatusBadRequest, ErrCodeBadRequest, "title and body required")
		default:
			fail(c, http.StatusInternalServerError, ErrCodeDispatchFailed, err.Error())
		}
		return
	}

	if results == nil {
		results = []services.DispatchResult{}
	}
	ok(c, http.StatusOK, DispatchResponse{Success: true, Results: results})
}

// isBodyTooLarge reports whether a bind error came from the request body
// exceeding the cap installed by http.MaxBytesReader.
func isBodyTooLarge(err error) bool {
	var mbe *http.MaxBytesError
	return errors.As(err, &mbe)
}
