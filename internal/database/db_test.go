package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sewagewatch/cso-live-service/internal/observability"
)

// fakeTx embeds pgx.Tx for interface satisfaction; only Commit and
// Rollback are expected to be called.
type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (f *fakeTx) Commit(context.Context) error {
	f.committed = true
	return f.commitErr
}

func (f *fakeTx) Rollback(context.Context) error {
	f.rolledBack = true
	return nil
}

type fakeBeginner struct {
	tx       *fakeTx
	beginErr error
}

func (f *fakeBeginner) Begin(context.Context) (pgx.Tx, error) {
	if f.beginErr != nil {
		return nil, f.beginErr
	}
	return f.tx, nil
}

func newTestDB(b beginner, clock clockwork.Clock, sink observability.Sink) *DB {
	return &DB{begin: b, clock: clock, events: sink}
}

func collectEvents(events *[]observability.Event) observability.Sink {
	return observability.SinkFunc(func(e observability.Event) { *events = append(*events, e) })
}

func TestExecute_CommitsOnSuccess(t *testing.T) {
	tx := &fakeTx{}
	var events []observability.Event
	db := newTestDB(&fakeBeginner{tx: tx}, clockwork.NewFakeClock(), collectEvents(&events))

	err := db.Execute(context.Background(), "summary", func(context.Context, pgx.Tx) error {
		return nil
	})

	require.NoError(t, err)
	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestExecute_RollsBackAndPropagatesErrorUnchanged(t *testing.T) {
	tx := &fakeTx{}
	var events []observability.Event
	db := newTestDB(&fakeBeginner{tx: tx}, clockwork.NewFakeClock(), collectEvents(&events))

	boom := errors.New("column was null")
	err := db.Execute(context.Background(), "summary", func(context.Context, pgx.Tx) error {
		return boom
	})

	assert.Same(t, boom, err, "unit-of-work errors must not be translated")
	assert.True(t, tx.rolledBack)
	assert.False(t, tx.committed)
}

func TestExecute_EmitsTimingEventOnSuccessAndFailure(t *testing.T) {
	clock := clockwork.NewFakeClock()
	tx := &fakeTx{}
	var events []observability.Event
	db := newTestDB(&fakeBeginner{tx: tx}, clock, collectEvents(&events))

	err := db.Execute(context.Background(), "slow-query", func(context.Context, pgx.Tx) error {
		clock.Advance(250 * time.Millisecond)
		return nil
	})
	require.NoError(t, err)

	_ = db.Execute(context.Background(), "failing-query", func(context.Context, pgx.Tx) error {
		clock.Advance(50 * time.Millisecond)
		return errors.New("nope")
	})

	require.Len(t, events, 2)
	q1, ok := events[0].(observability.QueryEvent)
	require.True(t, ok)
	assert.Equal(t, "slow-query", q1.Name)
	assert.Equal(t, 250*time.Millisecond, q1.Duration)

	q2, ok := events[1].(observability.QueryEvent)
	require.True(t, ok)
	assert.Equal(t, "failing-query", q2.Name)
	assert.Equal(t, 50*time.Millisecond, q2.Duration)
}

func TestExecute_BeginFailure(t *testing.T) {
	var events []observability.Event
	db := newTestDB(&fakeBeginner{beginErr: errors.New("pool exhausted")}, clockwork.NewFakeClock(), collectEvents(&events))

	err := db.Execute(context.Background(), "summary", func(context.Context, pgx.Tx) error {
		t.Fatal("unit of work must not run when begin fails")
		return nil
	})

	assert.Error(t, err)
	assert.Len(t, events, 1, "timing is recorded even when begin fails")
}
