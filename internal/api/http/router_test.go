package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/api/http/handlers"
	"github.com/spec-kit/ticket-workflow/internal/auth"
	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/notify"
	"github.com/spec-kit/ticket-workflow/internal/notify/channel"
	"github.com/spec-kit/ticket-workflow/internal/observability"
	"github.com/spec-kit/ticket-workflow/internal/persistence"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
	"github.com/spec-kit/ticket-workflow/internal/service"
	"github.com/spec-kit/ticket-workflow/internal/worker"
)

type testServer struct {
	app    *fiber.App
	tokens *auth.TokenManager
	relay  *worker.OutboxRelay
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := memstore.New(
		domain.User{ID: "consultant-1", Role: domain.RoleConsultant, Active: true},
		domain.User{ID: "consultant-2", Role: domain.RoleConsultant, Active: true},
		domain.User{ID: "operator-1", Role: domain.RoleOperator, Area: domain.AreaLogistics, Active: true},
		domain.User{ID: "manager-1", Role: domain.RoleManager, Active: true},
	)
	repos := store.Repositories()
	logger := zap.NewNop()
	metrics := observability.NewMetrics()

	tickets := service.NewTicketService(service.TicketDependencies{
		TicketRepo: repos.Tickets,
		OutboxRepo: repos.Outbox,
		UnitOfWork: repos.UnitOfWork,
		SLAPolicy:  domain.DefaultSLAPolicy(),
		Logger:     logger,
	})
	escalations := service.NewEscalationService(service.EscalationDependencies{
		TicketRepo: repos.Tickets,
		UserRepo:   repos.Users,
		OutboxRepo: repos.Outbox,
		UnitOfWork: repos.UnitOfWork,
		Logger:     logger,
	})
	messages := service.NewMessageService(service.MessageDependencies{
		TicketRepo:  repos.Tickets,
		MessageRepo: repos.Messages,
		OutboxRepo:  repos.Outbox,
		UnitOfWork:  repos.UnitOfWork,
		Logger:      logger,
	})
	broker := realtime.NewLocalBroker()
	registry := realtime.NewRegistry(broker, logger)

	bus := events.NewInMemoryDispatcher()
	notify.NewDispatcher(notify.Dependencies{
		Users:         repos.Users,
		Notifications: repos.Notifications,
		Channels:      []channel.Channel{channel.NewInApp(broker)},
		Metrics:       metrics,
		Logger:        logger,
	}).Register(bus)
	relay := worker.NewOutboxRelay(config.OutboxConfig{}, repos.Outbox, repos.Locker, bus, logger)

	tokens := auth.NewTokenManager("test-secret", time.Hour)
	app := fiber.New()
	RegisterMiddlewares(app, logger, metrics, 0)
	RegisterRoutes(app, RouteConfig{
		Health:         handlers.NewHealthHandler("ticket-workflow", "test", &persistence.Postgres{}, &persistence.Redis{}, metrics),
		Tickets:        handlers.NewTicketsHandler(tickets, escalations, messages),
		Notifications:  handlers.NewNotificationsHandler(service.NewNotificationService(repos.Notifications, nil), registry, logger),
		AuthMiddleware: auth.NewAuthMiddleware(tokens, repos.Users),
	})
	return &testServer{app: app, tokens: tokens, relay: relay}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any) (int, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		token, _, err := s.tokens.GenerateToken(domain.User{ID: userID})
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(req, -1)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	out := map[string]any{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp.StatusCode, out
}

func data(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	d, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("response has no data object: %v", body)
	}
	return d
}

func TestHealthAndAuth(t *testing.T) {
	s := newTestServer(t)

	if status, _ := s.do(t, http.MethodGet, "/health/ready", "", nil); status != http.StatusOK {
		t.Fatalf("ready status = %d", status)
	}
	status, body := s.do(t, http.MethodGet, "/api/v1/tickets", "", nil)
	if status != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d", status)
	}
	if errObj, _ := body["error"].(map[string]any); errObj["code"] != "UNAUTHORIZED" {
		t.Fatalf("error body = %v", body)
	}
}

func TestTicketLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, body := s.do(t, http.MethodPost, "/api/v1/tickets", "consultant-1", map[string]any{
		"title":       "Forklift battery",
		"description": "battery does not charge",
		"priority":    "high",
		"type":        "maintenance",
		"area":        "logistics",
	})
	if status != http.StatusCreated {
		t.Fatalf("create status = %d body=%v", status, body)
	}
	id, _ := data(t, body)["id"].(string)
	if id == "" {
		t.Fatal("missing ticket id")
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/tickets/"+id, "consultant-1", nil)
	if status != http.StatusOK {
		t.Fatalf("get status = %d", status)
	}
	sla, _ := data(t, body)["sla"].(map[string]any)
	if sla["state"] != string(domain.SLAOnTrack) {
		t.Fatalf("sla = %v", sla)
	}

	if status, _ := s.do(t, http.MethodGet, "/api/v1/tickets/"+id, "consultant-2", nil); status != http.StatusNotFound {
		t.Fatalf("foreign consultant status = %d", status)
	}
	// Consultant tickets start in production triage, outside the operator's area.
	if status, _ := s.do(t, http.MethodGet, "/api/v1/tickets/"+id, "operator-1", nil); status != http.StatusNotFound {
		t.Fatalf("operator outside area status = %d", status)
	}

	status, body = s.do(t, http.MethodPost, "/api/v1/tickets/"+id+"/transitions", "manager-1", map[string]any{"status": "completed"})
	if status != http.StatusConflict {
		t.Fatalf("illegal transition status = %d body=%v", status, body)
	}

	if _, err := s.relay.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	status, body = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "manager-1", nil)
	if status != http.StatusOK || data(t, body)["unread"] != float64(1) {
		t.Fatalf("unread status=%d body=%v", status, body)
	}
	status, body = s.do(t, http.MethodPost, "/api/v1/notifications/read-all", "manager-1", nil)
	if status != http.StatusOK || data(t, body)["updated"] != float64(1) {
		t.Fatalf("read-all status=%d body=%v", status, body)
	}
	if _, body = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "consultant-2", nil); data(t, body)["unread"] != float64(0) {
		t.Fatalf("unrelated consultant notified: %v", body)
	}
}

func TestEscalateToManagerRequiresRole(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/api/v1/tickets", "consultant-1", map[string]any{
		"title":       "Quote",
		"description": "needs approval",
		"priority":    "low",
		"type":        "purchase",
		"area":        "purchases",
	})
	id, _ := data(t, body)["id"].(string)

	status, _ := s.do(t, http.MethodPost, "/api/v1/tickets/"+id+"/escalations/manager", "consultant-1", map[string]any{
		"manager_id": "manager-1",
		"reason":     "over budget",
	})
	if status != http.StatusForbidden {
		t.Fatalf("consultant escalation status = %d", status)
	}
}

func TestTicketMessagesOverHTTP(t *testing.T) {
	s := newTestServer(t)
	_, body := s.do(t, http.MethodPost, "/api/v1/tickets", "consultant-1", map[string]any{
		"title":       "Stand lighting",
		"description": "two spots are out",
		"priority":    "medium",
		"type":        "maintenance",
		"area":        "logistics",
	})
	id, _ := data(t, body)["id"].(string)
	if _, err := s.relay.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}

	status, body := s.do(t, http.MethodPost, "/api/v1/tickets/"+id+"/messages", "consultant-1", map[string]any{"body": "Any update?"})
	if status != http.StatusCreated || data(t, body)["body"] != "Any update?" {
		t.Fatalf("post status=%d body=%v", status, body)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/tickets/"+id+"/messages", "consultant-2", map[string]any{"body": "hi"}); status != http.StatusNotFound {
		t.Fatalf("foreign consultant post status = %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/api/v1/tickets/"+id+"/messages", "consultant-1", map[string]any{"body": " "}); status != http.StatusBadRequest {
		t.Fatalf("blank body status = %d", status)
	}

	status, body = s.do(t, http.MethodGet, "/api/v1/tickets/"+id+"/messages", "manager-1", nil)
	items, _ := body["data"].([]any)
	if status != http.StatusOK || len(items) != 1 {
		t.Fatalf("list status=%d body=%v", status, body)
	}

	if _, err := s.relay.Drain(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, body = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "manager-1", nil)
	if data(t, body)["unread"] != float64(2) {
		t.Fatalf("manager unread = %v", body)
	}
	_, body = s.do(t, http.MethodGet, "/api/v1/notifications/unread-count", "consultant-1", nil)
	if data(t, body)["unread"] != float64(0) {
		t.Fatalf("sender notified of own activity: %v", body)
	}
}
