// Package pgstore batches published fixes into Postgres with COPY.
package pgstore

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/store"
)

var columns = []string{"identity", "latitude", "longitude", "altitude", "speed", "course", "satellites", "gps_time", "collected_time", "reason"}

// Copier is satisfied by *pgxpool.Pool and *pgx.Conn.
type Copier interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
}

type Store struct {
	config StoreConfig
	db     Copier
	table  string
	log    log.Logger

	wlock sync.Mutex
	wbuf  buffer
	ready chan buffer
	done  chan struct{}
}

type StoreConfig struct {
	BufSize     int
	TickerDur   time.Duration
	MaxAgeFlush time.Duration
	// Pending is the number of full buffers that may wait for the writer.
	Pending int
}

type buffer struct {
	seq uint64
	t1  time.Time
	buf []store.Record
}

func newBuffer(seq uint64, n int) buffer {
	return buffer{seq: seq, buf: make([]store.Record, 0, n)}
}

func NewStore(db Copier, table string, config StoreConfig, logger log.Logger) *Store {
	if config.BufSize <= 0 {
		config.BufSize = 50
	}
	if config.MaxAgeFlush <= 0 {
		config.MaxAgeFlush = 10 * time.Second
	}
	if config.TickerDur <= 0 {
		config.TickerDur = config.MaxAgeFlush / 2
	}
	if config.Pending <= 0 {
		config.Pending = 4
	}
	st := &Store{config: config, db: db, table: table, log: logger}
	st.log.Context = log.NewContext(nil).Str("module", "pgstore").Value()
	st.wbuf = newBuffer(0, config.BufSize)
	st.ready = make(chan buffer, config.Pending)
	st.done = make(chan struct{})
	return st
}

// Run flushes until ctx is done, then writes what is left and returns.
func (st *Store) Run(ctx context.Context) {
	defer close(st.done)
	ticker := time.NewTicker(st.config.TickerDur)
	defer ticker.Stop()
	st.log.Info().Str("table", st.table).Msg("starting flusher task")
	for {
		select {
		case b := <-st.ready:
			st.copy(ctx, b)
		case t := <-ticker.C:
			st.wlock.Lock()
			if len(st.wbuf.buf) != 0 && t.Sub(st.wbuf.t1) >= st.config.MaxAgeFlush {
				st.flush()
			}
			st.wlock.Unlock()
		case <-ctx.Done():
			st.wlock.Lock()
			if len(st.wbuf.buf) != 0 {
				st.flush()
			}
			st.wlock.Unlock()
			for {
				select {
				case b := <-st.ready:
					st.copy(context.Background(), b)
				default:
					return
				}
			}
		}
	}
}

// Done is closed when Run has returned.
func (st *Store) Done() <-chan struct{} { return st.done }

// Put never blocks on the database.
func (st *Store) Put(rec store.Record) {
	st.wlock.Lock()
	if len(st.wbuf.buf) == 0 {
		st.wbuf.t1 = time.Now()
	}
	st.wbuf.buf = append(st.wbuf.buf, rec)
	if len(st.wbuf.buf) >= st.config.BufSize {
		st.flush()
	}
	st.wlock.Unlock()
}

// flush hands the write buffer to Run. Caller holds wlock.
func (st *Store) flush() {
	next := st.wbuf.seq + 1
	select {
	case st.ready <- st.wbuf:
	default:
		st.log.Warn().Uint64("seq", st.wbuf.seq).Int("length", len(st.wbuf.buf)).Msg("writer behind, dropping batch")
	}
	st.wbuf = newBuffer(next, st.config.BufSize)
}

func (st *Store) copy(ctx context.Context, b buffer) {
	t1 := time.Now()
	_, err := st.db.CopyFrom(ctx,
		pgx.Identifier{st.table},
		columns,
		pgx.CopyFromSlice(len(b.buf), func(i int) ([]interface{}, error) {
			d := b.buf[i]
			return []interface{}{d.Identity, d.Latitude, d.Longitude, d.Altitude, d.Speed, d.Course, d.Satellites, d.GPSTime, d.CollectedTime, d.Reason}, nil
		}))
	if err != nil {
		st.log.Error().Err(err).Uint64("seq", b.seq).Msg("flush error")
		return
	}
	st.log.Debug().Str("action", "flush").Int("length", len(b.buf)).Dur("time_taken", time.Since(t1)).Msg("flush successful")
}
