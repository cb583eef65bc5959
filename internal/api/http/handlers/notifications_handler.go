package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/api/dto"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
	"github.com/spec-kit/ticket-workflow/internal/service"
	apperrors "github.com/spec-kit/ticket-workflow/pkg/util/errorutil"
)

const (
	streamHeartbeat = 25 * time.Second
	streamBuffer    = 64
)

// NotificationsHandler exposes a caller's notifications and live stream.
type NotificationsHandler struct {
	service  *service.NotificationService
	registry *realtime.Registry
	logger   *zap.Logger

	closeOnce sync.Once
	closing   chan struct{}
}

// NewNotificationsHandler constructs handler.
func NewNotificationsHandler(svc *service.NotificationService, registry *realtime.Registry, logger *zap.Logger) *NotificationsHandler {
	return &NotificationsHandler{service: svc, registry: registry, logger: logger, closing: make(chan struct{})}
}

// Close ends every open stream so the server can shut down.
func (h *NotificationsHandler) Close() {
	h.closeOnce.Do(func() { close(h.closing) })
}

// List GET /notifications.
func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	items, err := h.service.ListNotifications(c.UserContext(), principal.User.ID, c.QueryBool("unread", false), c.QueryInt("limit", 50))
	if err != nil {
		return err
	}
	out := make([]dto.NotificationResponse, 0, len(items))
	for _, n := range items {
		out = append(out, notificationResponse(n))
	}
	return c.JSON(fiber.Map{"data": out})
}

// UnreadCount GET /notifications/unread-count.
func (h *NotificationsHandler) UnreadCount(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	count, err := h.service.GetUnreadCount(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": dto.UnreadCountResponse{Unread: count}})
}

// MarkRead POST /notifications/:id/read.
func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.MarkAsRead(c.UserContext(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkUnread POST /notifications/:id/unread.
func (h *NotificationsHandler) MarkUnread(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	if err := h.service.MarkAsUnread(c.UserContext(), principal.User.ID, c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// MarkAllRead POST /notifications/read-all.
func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	changed, err := h.service.MarkAllAsRead(c.UserContext(), principal.User.ID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"updated": changed}})
}

// Stream GET /notifications/stream serves live frames as server-sent events.
// A session_id query parameter lets a reconnecting client replace its previous
// stream instead of adding a second one; the replaced stream ends.
func (h *NotificationsHandler) Stream(c *fiber.Ctx) error {
	principal, ok := auth.PrincipalFromContext(c)
	if !ok {
		return apperrors.NewUnauthorized("user required")
	}
	recipient := principal.User
	unread, err := h.service.GetUnreadCount(c.UserContext(), recipient.ID)
	if err != nil {
		return err
	}

	frames := make(chan realtime.Frame, streamBuffer)
	ctx, cancel := context.WithCancel(context.Background())
	session, err := h.registry.Open(ctx, c.Query("session_id"), recipient.ID, func(f realtime.Frame) {
		select {
		case frames <- f:
		default:
			h.logger.Warn("live stream buffer full; frame dropped",
				zap.String("recipient_id", recipient.ID),
				zap.String("notification_id", f.NotificationID))
		}
	})
	if err != nil {
		cancel()
		return apperrors.NewInternalError(err)
	}

	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer session.Close()

		if err := writeEvent(w, "unread_count", dto.UnreadCountResponse{Unread: unread}); err != nil {
			return
		}
		heartbeat := time.NewTicker(streamHeartbeat)
		defer heartbeat.Stop()

		for {
			select {
			case <-h.closing:
				return
			case <-session.Done():
				// Replaced by a newer stream for the same session, or stopped.
				return
			case f := <-frames:
				if err := writeEvent(w, string(f.Kind), f); err != nil {
					return
				}
			case <-heartbeat.C:
				if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})
	return nil
}

func writeEvent(w *bufio.Writer, event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}

func notificationResponse(n domain.Notification) dto.NotificationResponse {
	return dto.NotificationResponse{
		ID:             n.ID,
		Type:           n.Type,
		Title:          n.Title,
		Message:        n.Message,
		SourceTicketID: n.SourceTicketID,
		CreatedAt:      n.CreatedAt,
		Read:           n.Read,
		ReadAt:         n.ReadAt,
	}
}
