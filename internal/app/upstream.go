package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"
	"golang.org/x/time/rate"

	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/forwarder"
	"github.com/cradlepoint/sdk-samples-sub000/internal/gpsgate"
)

// dialFunc is replaced in tests.
type dialFunc func(ctx context.Context, cfg gpsgate.ClientConfig, id string, s *gpsgate.Session, logger log.Logger) (*gpsgate.Client, error)

// upstream owns the GpsGate connection. Every connection gets a fresh
// session; thresholds are shared so server overrides survive reconnects.
// With a zero reconnect delay any transport failure is fatal.
type upstream struct {
	mu         sync.Mutex
	client     *gpsgate.Client
	session    atomic.Pointer[gpsgate.Session]
	sessionCfg gpsgate.SessionConfig
	clientCfg  gpsgate.ClientConfig
	thresholds *filter.Thresholds
	emitter    forwarder.Emitter
	limiter    *rate.Limiter
	reconnect  bool
	dial       dialFunc
	log        log.Logger
}

func newUpstream(sc gpsgate.SessionConfig, cc gpsgate.ClientConfig, th *filter.Thresholds, emitter forwarder.Emitter, delay time.Duration, logger log.Logger) *upstream {
	u := &upstream{
		sessionCfg: sc,
		clientCfg:  cc,
		thresholds: th,
		emitter:    emitter,
		reconnect:  delay > 0,
		dial:       gpsgate.Dial,
		log:        logger,
	}
	if delay > 0 {
		u.limiter = rate.NewLimiter(rate.Every(delay), 1)
	}
	u.log.Context = log.NewContext(nil).Str("module", "upstream").Value()
	return u
}

// connect dials and completes the handshake. Caller holds mu.
func (u *upstream) connect(ctx context.Context) error {
	s, err := gpsgate.NewSession(u.sessionCfg, u.thresholds, u.log)
	if err != nil {
		return err
	}
	s.OnTransition = func(from, to gpsgate.State) {
		if u.emitter == nil {
			return
		}
		ev := events.StateEvent{From: from.String(), To: to.String(), At: time.Now()}
		if err := u.emitter.Emit(ctx, events.TopicSessionState, ev); err != nil {
			u.log.Error().Err(err).Msg("emit session state")
		}
	}
	u.session.Store(s)
	id := uuid.NewString()
	u.log.Info().Str("cid", id).Str("addr", u.clientCfg.Addr).Msg("connecting to gpsgate")
	c, err := u.dial(ctx, u.clientCfg, id, s, u.log)
	if err != nil {
		u.session.Store(nil)
		return err
	}
	if err := c.Handshake(ctx); err != nil {
		c.Close()
		u.session.Store(nil)
		return err
	}
	u.client = c
	return nil
}

// Connect is the initial connection attempt.
func (u *upstream) Connect(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.limiter != nil {
		u.limiter.Allow()
	}
	return u.connect(ctx)
}

func (u *upstream) Forward(ctx context.Context, sentences []string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client == nil {
		if !u.reconnect {
			return fmt.Errorf("gpsgate not connected")
		}
		if !u.limiter.Allow() {
			return fmt.Errorf("%w: waiting to reconnect", forwarder.ErrUnavailable)
		}
		if err := u.connect(ctx); err != nil {
			u.log.Warn().Err(err).Msg("reconnect failed")
			return fmt.Errorf("%w: %v", forwarder.ErrUnavailable, err)
		}
	}
	err := u.client.Forward(ctx, sentences)
	if err == nil {
		return nil
	}
	u.log.Error().Err(err).Msg("forward failed, dropping connection")
	u.client.Close()
	u.client = nil
	u.session.Store(nil)
	if !u.reconnect {
		return err
	}
	return fmt.Errorf("%w: %v", forwarder.ErrUnavailable, err)
}

// Snapshot does not wait for a handshake in progress.
func (u *upstream) Snapshot() gpsgate.Snapshot {
	s := u.session.Load()
	if s == nil {
		return gpsgate.Snapshot{State: gpsgate.Offline.String()}
	}
	return s.Snapshot()
}

func (u *upstream) Close() {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.client != nil {
		u.client.Close()
		u.client = nil
	}
	u.session.Store(nil)
}
