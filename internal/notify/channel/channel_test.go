package channel

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/realtime"
)

func sampleNotification() domain.Notification {
	return domain.Notification{
		ID:             "n1",
		RecipientID:    "u1",
		Type:           domain.NotificationSLAViolated,
		Title:          "SLA violated",
		Message:        "ticket t1 exceeded its SLA",
		SourceTicketID: "t1",
	}
}

func TestLiveChannelsRequireSessionAndPreference(t *testing.T) {
	broker := realtime.NewLocalBroker()
	ctx := context.Background()
	user := domain.User{ID: "u1", SoundEnabled: true, SystemAlertsEnabled: true}

	alert := NewSystemAlert(broker)
	if err := alert.Send(ctx, user, sampleNotification()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("alert without session err = %v", err)
	}

	var frames []realtime.Frame
	sub, _ := broker.Subscribe(ctx, "u1", func(f realtime.Frame) { frames = append(frames, f) })
	defer sub.Close()

	if err := alert.Send(ctx, user, sampleNotification()); err != nil {
		t.Fatal(err)
	}
	if err := NewAudio(broker).Send(ctx, user, sampleNotification()); err != nil {
		t.Fatal(err)
	}
	muted := user
	muted.SoundEnabled = false
	if err := NewAudio(broker).Send(ctx, muted, sampleNotification()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("muted audio err = %v", err)
	}
	if err := NewInApp(broker).Send(ctx, user, sampleNotification()); err != nil {
		t.Fatal(err)
	}

	if len(frames) != 3 {
		t.Fatalf("frames = %d", len(frames))
	}
	if frames[0].Kind != realtime.FrameSystemAlert || frames[1].Sound != "urgent" || frames[2].Kind != realtime.FrameNotification {
		t.Fatalf("unexpected frames %+v", frames)
	}
}

func TestEmailRetriesThenSucceeds(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req mailRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || len(req.Recipients) != 1 {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if atomic.AddInt32(&calls, 1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer server.Close()

	email := NewEmail(config.NotificationConfig{
		MailEndpoint:       server.URL,
		MailMaxRetries:     3,
		MailTimeoutSeconds: 2,
	}, zap.NewNop())
	user := domain.User{ID: "u1", Email: "u1@example.com", EmailEnabled: true}

	if err := email.Send(context.Background(), user, sampleNotification()); err != nil {
		t.Fatal(err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestEmailSkipsAndFails(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := config.NotificationConfig{MailEndpoint: server.URL, MailMaxRetries: 2}
	email := NewEmail(cfg, zap.NewNop())
	ctx := context.Background()

	if err := email.Send(ctx, domain.User{ID: "u1", EmailEnabled: true}, sampleNotification()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("no address err = %v", err)
	}
	if err := email.Send(ctx, domain.User{ID: "u1", Email: "u1@example.com"}, sampleNotification()); !errors.Is(err, ErrSkipped) {
		t.Fatalf("disabled err = %v", err)
	}
	err := email.Send(ctx, domain.User{ID: "u1", Email: "u1@example.com", EmailEnabled: true}, sampleNotification())
	if err == nil || errors.Is(err, ErrSkipped) {
		t.Fatalf("failing endpoint err = %v", err)
	}
}
