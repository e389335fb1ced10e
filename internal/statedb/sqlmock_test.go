package statedb

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"

	"github.com/nexus-core/agentcore/pkg/types"
)

// newMockStore builds a Store over a sqlmock-driven *sql.DB, for exercising
// error paths a real embedded sqlite database won't produce on demand
// (a dropped connection, a constraint violation from the server side).
// Grounded on the teacher's own internal/sessions/cockroach_test.go, which
// uses go-sqlmock for exactly this purpose against its Cockroach store.
func newMockStore(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return &Store{db: db, counters: NewDiscrepancyCounters()}, mock
}

func TestGetThreadWrapsUnderlyingQueryError(t *testing.T) {
	s, mock := newMockStore(t)
	id := types.NewThreadID()

	mock.ExpectQuery("SELECT id, rollout_path").
		WithArgs(string(id)).
		WillReturnError(errors.New("connection reset by peer"))

	_, err := s.GetThread(context.Background(), id)
	if err == nil {
		t.Fatal("expected GetThread to surface the underlying query error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}

func TestUpsertThreadWrapsUnderlyingExecError(t *testing.T) {
	s, mock := newMockStore(t)
	id := types.NewThreadID()

	mock.ExpectExec("INSERT INTO threads").
		WillReturnError(errors.New("database is locked"))

	err := s.UpsertThread(context.Background(), sampleMeta(id, time.Now().UTC()))
	if err == nil {
		t.Fatal("expected UpsertThread to surface the underlying exec error")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet sqlmock expectations: %v", err)
	}
}
