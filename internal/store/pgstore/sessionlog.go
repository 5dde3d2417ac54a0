package pgstore

import (
	"context"
	"time"

	"github.com/jackc/pgconn"
	"github.com/phuslu/log"
)

// Execer is satisfied by *pgxpool.Pool.
type Execer interface {
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)
}

// SessionLog records upstream session state changes.
type SessionLog struct {
	db  Execer
	log log.Logger
}

func NewSessionLog(db Execer, logger log.Logger) *SessionLog {
	m := &SessionLog{db: db, log: logger}
	m.log.Context = log.NewContext(nil).Str("module", "session_log").Value()
	return m
}

func (st *SessionLog) SaveTransition(ctx context.Context, identity, from, to string, t time.Time) {
	_, err := st.db.Exec(ctx, `INSERT INTO gpsgate_session_event (identity,from_state,to_state,event_time) VALUES ($1,$2,$3,$4)`, identity, from, to, t)
	if err != nil {
		st.log.Error().Err(err).Msg("error saving session event")
	}
}
