package repository

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/spec-kit/ticket-workflow/internal/domain"
	"github.com/spec-kit/ticket-workflow/internal/events"
)

type recordingQuerier struct {
	statements []string
	seq        int64
	lockErr    error
}

func (q *recordingQuerier) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	q.statements = append(q.statements, sql)
	if q.lockErr != nil {
		return pgconn.CommandTag{}, q.lockErr
	}
	return pgconn.NewCommandTag("SELECT 1"), nil
}

func (q *recordingQuerier) Query(_ context.Context, sql string, _ ...any) (pgx.Rows, error) {
	return nil, errors.New("unexpected query: " + sql)
}

func (q *recordingQuerier) QueryRow(_ context.Context, sql string, _ ...any) pgx.Row {
	q.statements = append(q.statements, sql)
	return seqRow(q.seq)
}

type seqRow int64

func (r seqRow) Scan(dest ...any) error {
	*(dest[0].(*int64)) = int64(r)
	return nil
}

func TestAppendEventLocksBeforeInsert(t *testing.T) {
	q := &recordingQuerier{seq: 42}
	evt := events.NewTicketEvent(events.EventTicketUpdated, domain.Ticket{ID: "t1", Version: 2}, "op-1", "", time.Now())

	appended, err := appendEvent(context.Background(), q, &evt)
	if err != nil {
		t.Fatal(err)
	}
	if !appended || evt.Seq != 42 {
		t.Fatalf("appended=%v seq=%d", appended, evt.Seq)
	}
	if len(q.statements) != 2 {
		t.Fatalf("statements = %v", q.statements)
	}
	if !strings.Contains(q.statements[0], "pg_advisory_xact_lock") {
		t.Fatalf("first statement must take the append lock: %s", q.statements[0])
	}
	if !strings.Contains(q.statements[1], "INSERT INTO outbox_events") {
		t.Fatalf("second statement = %s", q.statements[1])
	}
}

func TestAppendEventLockFailureSkipsInsert(t *testing.T) {
	q := &recordingQuerier{lockErr: errors.New("connection reset")}
	evt := events.NewTicketEvent(events.EventTicketUpdated, domain.Ticket{ID: "t1", Version: 2}, "op-1", "", time.Now())

	if _, err := appendEvent(context.Background(), q, &evt); err == nil {
		t.Fatal("expected lock error")
	}
	if len(q.statements) != 1 {
		t.Fatalf("insert ran without the lock: %v", q.statements)
	}
}
