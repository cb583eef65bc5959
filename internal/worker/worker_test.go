package worker

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/spec-kit/ticket-workflow/internal/config"
	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
	"github.com/spec-kit/ticket-workflow/internal/repository/memstore"
)

type flakyPublisher struct {
	failKey string
	fails   int
	got     []string
}

func (p *flakyPublisher) Publish(_ context.Context, evt events.Event) error {
	if evt.Key == p.failKey && p.fails > 0 {
		p.fails--
		return errors.New("store unavailable")
	}
	p.got = append(p.got, evt.Key)
	return nil
}

func appendEvents(t *testing.T, store *memstore.Store, n int) {
	t.Helper()
	outbox := store.Repositories().Outbox
	for i := 1; i <= n; i++ {
		ticket := domain.Ticket{ID: fmt.Sprintf("t%d", i), Version: 1}
		evt := events.NewTicketEvent(events.EventTicketCreated, ticket, "c1", "", time.Now())
		if _, err := outbox.Append(context.Background(), &evt); err != nil {
			t.Fatal(err)
		}
	}
}

func TestRelayAdvancesCursorOnlyAfterPublish(t *testing.T) {
	store := memstore.New()
	appendEvents(t, store, 3)
	repos := store.Repositories()
	pub := &flakyPublisher{failKey: "t2@v1", fails: 1}
	relay := NewOutboxRelay(config.OutboxConfig{BatchSize: 2}, repos.Outbox, repos.Locker, pub, nil)
	ctx := context.Background()

	n, err := relay.Drain(ctx)
	if err == nil || n != 1 {
		t.Fatalf("first drain n=%d err=%v", n, err)
	}
	if cursor, _ := repos.Outbox.GetCursor(ctx, "notification-dispatcher"); cursor != 1 {
		t.Fatalf("cursor = %d", cursor)
	}

	n, err = relay.Drain(ctx)
	if err != nil || n != 2 {
		t.Fatalf("second drain n=%d err=%v", n, err)
	}
	want := []string{"t1@v1", "t2@v1", "t3@v1"}
	if fmt.Sprint(pub.got) != fmt.Sprint(want) {
		t.Fatalf("published %v", pub.got)
	}

	if n, err := relay.Drain(ctx); err != nil || n != 0 {
		t.Fatalf("idle drain n=%d err=%v", n, err)
	}
}

func TestRelaySkipsWhileLockHeld(t *testing.T) {
	store := memstore.New()
	appendEvents(t, store, 1)
	repos := store.Repositories()
	pub := &flakyPublisher{}
	relay := NewOutboxRelay(config.OutboxConfig{}, repos.Outbox, repos.Locker, pub, nil)

	release, ok, _ := repos.Locker.TryLock(context.Background(), relayLockKey)
	if !ok {
		t.Fatal("lock not acquired")
	}
	if n, err := relay.Drain(context.Background()); err != nil || n != 0 {
		t.Fatalf("drain under foreign lock n=%d err=%v", n, err)
	}
	release()
	if n, _ := relay.Drain(context.Background()); n != 1 {
		t.Fatalf("drain after release n=%d", n)
	}
}

func TestRelayRunStopsOnCancel(t *testing.T) {
	store := memstore.New()
	appendEvents(t, store, 2)
	repos := store.Repositories()
	pub := &flakyPublisher{}
	relay := NewOutboxRelay(config.OutboxConfig{PollIntervalMs: 10}, repos.Outbox, nil, pub, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		relay.Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for {
		cursor, _ := repos.Outbox.GetCursor(context.Background(), "notification-dispatcher")
		if cursor == 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("relay did not catch up")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("relay did not stop")
	}
}

type countingSweeper struct {
	calls int
	n     int
	err   error
}

func (s *countingSweeper) RecordSLAViolations(context.Context) (int, error) {
	s.calls++
	return s.n, s.err
}

func TestSLAMonitorSweep(t *testing.T) {
	store := memstore.New()
	locker := store.Repositories().Locker
	sweeper := &countingSweeper{n: 2}
	monitor, err := NewSLAMonitor(config.SLAConfig{SweepSchedule: "*/5 * * * *", Timezone: "UTC"}, sweeper, locker, nil)
	if err != nil {
		t.Fatal(err)
	}

	if n, err := monitor.Sweep(context.Background()); err != nil || n != 2 {
		t.Fatalf("sweep n=%d err=%v", n, err)
	}

	release, _, _ := locker.TryLock(context.Background(), slaLockKey)
	if n, _ := monitor.Sweep(context.Background()); n != 0 || sweeper.calls != 1 {
		t.Fatalf("sweep under foreign lock n=%d calls=%d", n, sweeper.calls)
	}
	release()

	monitor.Start()
	monitor.Stop()
}

func TestSLAMonitorRejectsBadConfig(t *testing.T) {
	if _, err := NewSLAMonitor(config.SLAConfig{SweepSchedule: "not a schedule"}, &countingSweeper{}, nil, nil); err == nil {
		t.Fatal("expected schedule error")
	}
	if _, err := NewSLAMonitor(config.SLAConfig{Timezone: "Mars/Olympus"}, &countingSweeper{}, nil, nil); err == nil {
		t.Fatal("expected timezone error")
	}
}
