package pgstore

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/fix"
	"github.com/cradlepoint/sdk-samples-sub000/internal/store"
)

type fakeCopier struct {
	mu     sync.Mutex
	tables []string
	rows   [][]interface{}
	calls  int
}

func (f *fakeCopier) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.tables = append(f.tables, table[0])
	var n int64
	for src.Next() {
		v, err := src.Values()
		if err != nil {
			return n, err
		}
		if len(v) != len(cols) {
			panic("column count mismatch")
		}
		f.rows = append(f.rows, v)
		n++
	}
	return n, src.Err()
}

func (f *fakeCopier) snapshot() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls, len(f.rows)
}

func quietLogger() log.Logger {
	return log.Logger{Level: log.ErrorLevel, Writer: &log.IOWriter{Writer: io.Discard}}
}

func record(i int) store.Record {
	f := &fix.Fix{Valid: true, Latitude: fix.Float(45), Longitude: fix.Float(7), Satellites: fix.Int(i), Timestamp: time.Now()}
	return store.NewRecord("imei", "time", f)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFlushOnSize(t *testing.T) {
	db := &fakeCopier{}
	st := NewStore(db, "gps_fix", StoreConfig{BufSize: 3, MaxAgeFlush: time.Hour}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	for i := 0; i < 7; i++ {
		st.Put(record(i))
	}
	waitFor(t, func() bool { calls, rows := db.snapshot(); return calls == 2 && rows == 6 })

	cancel()
	<-st.Done()
	calls, rows := db.snapshot()
	if calls != 3 || rows != 7 {
		t.Fatalf("calls=%d rows=%d after shutdown", calls, rows)
	}
	if db.tables[0] != "gps_fix" {
		t.Fatalf("table %q", db.tables[0])
	}
}

func TestFlushOnAge(t *testing.T) {
	db := &fakeCopier{}
	st := NewStore(db, "gps_fix", StoreConfig{BufSize: 100, MaxAgeFlush: 20 * time.Millisecond, TickerDur: 5 * time.Millisecond}, quietLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go st.Run(ctx)

	st.Put(record(1))
	waitFor(t, func() bool { _, rows := db.snapshot(); return rows == 1 })
}

type fakeExecer struct {
	sql  string
	args []interface{}
}

func (f *fakeExecer) Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error) {
	f.sql, f.args = sql, args
	return nil, nil
}

func TestSessionLog(t *testing.T) {
	db := &fakeExecer{}
	NewSessionLog(db, quietLogger()).SaveTransition(context.Background(), "imei", "OFFLINE", "TRY_LOGIN", time.Now())
	if len(db.args) != 4 || db.args[2] != "TRY_LOGIN" {
		t.Fatalf("args %v", db.args)
	}
}
