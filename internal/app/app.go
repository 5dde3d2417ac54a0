// Package app wires the configured GPS source, the forwarding pipeline, the
// GpsGate upstream and the optional observers into one process.
package app

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/aggregator"
	"github.com/cradlepoint/sdk-samples-sub000/internal/config"
	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/forwarder"
	"github.com/cradlepoint/sdk-samples-sub000/internal/gpsgate"
	"github.com/cradlepoint/sdk-samples-sub000/internal/replay"
	"github.com/cradlepoint/sdk-samples-sub000/internal/sink"
	"github.com/cradlepoint/sdk-samples-sub000/internal/source"
	"github.com/cradlepoint/sdk-samples-sub000/internal/store"
	"github.com/cradlepoint/sdk-samples-sub000/internal/store/pgstore"
	"github.com/cradlepoint/sdk-samples-sub000/internal/web"
)

// NewLogger builds the process logger from log_level and log_format.
func NewLogger(cfg *config.Config) log.Logger {
	logger := log.DefaultLogger
	logger.Level = log.ParseLevel(cfg.LogLevel)
	if cfg.LogFormat == "console" {
		logger.Writer = &log.ConsoleWriter{ColorOutput: true, EndWithMessage: true}
	} else {
		logger.Writer = &log.IOWriter{Writer: os.Stderr}
	}
	return logger
}

type App struct {
	cfg        *config.Config
	log        log.Logger
	thresholds *filter.Thresholds
	bus        *events.Bus
	agg        *aggregator.Aggregator
	fwd        *forwarder.Forwarder
	up         *upstream
	src        source.Source
	hub        *web.Hub
	started    time.Time
}

// New checks everything that can be checked without I/O: thresholds under
// the configured policy, transport and login identity.
func New(cfg *config.Config, logger log.Logger) (*App, error) {
	th, err := cfg.Thresholds()
	if err != nil {
		return nil, err
	}
	sc, err := cfg.SessionConfig()
	if err != nil {
		return nil, err
	}
	// fails fast on xml transport and missing identity
	if _, err := gpsgate.NewSession(sc, th, logger); err != nil {
		return nil, err
	}
	b, err := events.New(logger)
	if err != nil {
		return nil, err
	}

	a := &App{cfg: cfg, log: logger, thresholds: th, bus: b, hub: web.NewHub()}
	a.log.Context = log.NewContext(nil).Str("module", "app").Value()
	a.agg = aggregator.New(filter.NewEngine(th, logger), logger)
	a.up = newUpstream(sc, cfg.Upstream(), th, b, cfg.ReconnectDelay, logger)
	a.fwd = forwarder.New(forwarder.Config{Identity: cfg.Identity(), FixTime: cfg.FixTime}, a.agg, a.up, b, logger)

	rc := source.ReaderConfig{Pacing: cfg.GPS.Pacing, ReadSize: cfg.GPS.ReadSize}
	switch cfg.GPS.Source {
	case "serial":
		a.src = source.NewSerial(source.SerialConfig{Port: cfg.GPS.SerialPort, Baud: cfg.GPS.Baud, Reader: rc}, logger)
	default:
		a.src = source.NewListener(source.ListenerConfig{Addr: cfg.GPS.ListenAddr, ProxyProtocol: cfg.GPS.ProxyProtocol, Reader: rc}, logger)
	}
	return a, nil
}

type Status struct {
	Uptime     string              `json:"uptime"`
	Session    gpsgate.Snapshot    `json:"session"`
	Counters   forwarder.Counters  `json:"counters"`
	Thresholds map[string]*float64 `json:"thresholds"`
	Policy     string              `json:"filter_policy"`
	Streams    int                 `json:"stream_subscribers"`
}

func (a *App) Status() Status {
	return Status{
		Uptime:     time.Since(a.started).Truncate(time.Second).String(),
		Session:    a.up.Snapshot(),
		Counters:   a.fwd.Counters(),
		Thresholds: a.thresholds.Snapshot(),
		Policy:     a.thresholds.Policy().String(),
		Streams:    a.hub.Len(),
	}
}

// Run connects upstream, then serves the GPS source until ctx is done or a
// fatal error occurs.
func (a *App) Run(ctx context.Context) error {
	a.started = time.Now()
	var wg sync.WaitGroup
	defer wg.Wait()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := a.up.Connect(ctx); err != nil {
		if a.cfg.ReconnectDelay <= 0 {
			return fmt.Errorf("gpsgate: %w", err)
		}
		a.log.Warn().Err(err).Dur("reconnect_delay", a.cfg.ReconnectDelay).Msg("initial connect failed, will retry on next fix")
	}
	defer a.up.Close()

	a.bus.Subscribe("stream", "^"+events.TopicFixPublished+"$", func(ctx context.Context, topic string, data interface{}) {
		if b, err := sink.Encode(data.(events.FixEvent)); err == nil {
			a.hub.Send(b)
		}
	})
	if err := a.startSinks(ctx, &wg); err != nil {
		return err
	}
	if err := a.startStore(ctx, &wg); err != nil {
		return err
	}

	handler := a.fwd.HandleBurst
	if a.cfg.Record.Path != "" {
		rec, err := replay.CreateWriter(a.cfg.Record.Path)
		if err != nil {
			return fmt.Errorf("record: %w", err)
		}
		defer rec.Close()
		a.log.Info().Str("path", a.cfg.Record.Path).Msg("recording bursts")
		handler = func(ctx context.Context, lines []string, now time.Time) error {
			if err := rec.WriteBurst(now, lines); err != nil {
				a.log.Error().Err(err).Msg("record burst")
			}
			return a.fwd.HandleBurst(ctx, lines, now)
		}
	}

	if a.cfg.Status.ListenAddr != "" {
		api := web.NewApi(web.ApiConfig{ListenAddr: a.cfg.Status.ListenAddr}, func() interface{} { return a.Status() }, a.hub, a.log)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := api.Run(ctx); err != nil {
				a.log.Error().Err(err).Msg("status api stopped")
			}
		}()
	}

	err := a.src.Run(ctx, handler)
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func (a *App) startSinks(ctx context.Context, wg *sync.WaitGroup) error {
	var pubs []sink.Publisher
	if a.cfg.MQTT.Broker != "" {
		m, err := sink.NewMQTT(sink.MQTTConfig{Broker: a.cfg.MQTT.Broker, Topic: a.cfg.MQTT.Topic, ClientID: a.cfg.MQTT.ClientID}, a.log)
		if err != nil {
			return err
		}
		pubs = append(pubs, m)
	}
	if a.cfg.NATS.URL != "" {
		n, err := sink.NewNATS(sink.NATSConfig{URL: a.cfg.NATS.URL, Subject: a.cfg.NATS.Subject, Name: "gpsgate-" + a.cfg.Identity()}, a.log)
		if err != nil {
			for _, p := range pubs {
				p.Close()
			}
			return err
		}
		pubs = append(pubs, n)
	}
	if len(pubs) == 0 {
		return nil
	}
	f := sink.NewFanout(pubs, 64, a.log)
	a.bus.Subscribe("sinks", "^"+events.TopicFixPublished+"$", func(ctx context.Context, topic string, data interface{}) {
		f.Offer(data.(events.FixEvent))
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.Run(ctx)
	}()
	return nil
}

func (a *App) startStore(ctx context.Context, wg *sync.WaitGroup) error {
	if a.cfg.Store.DbURL == "" {
		return nil
	}
	pool, err := pgxpool.Connect(ctx, a.cfg.Store.DbURL)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	st := pgstore.NewStore(pool, a.cfg.Store.Table, pgstore.StoreConfig{BufSize: a.cfg.Store.BufSize, MaxAgeFlush: a.cfg.Store.FlushAge}, a.log)
	var fixes store.FixStore = st
	sl := pgstore.NewSessionLog(pool, a.log)
	identity := a.cfg.Identity()

	a.bus.Subscribe("store", "^"+events.TopicFixPublished+"$", func(ctx context.Context, topic string, data interface{}) {
		ev := data.(events.FixEvent)
		fixes.Put(store.NewRecord(ev.Identity, ev.Reason, ev.Fix))
	})
	a.bus.Subscribe("session_log", "^"+events.TopicSessionState+`$`, func(_ context.Context, topic string, data interface{}) {
		ev := data.(events.StateEvent)
		wg.Add(1)
		go func() {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			sl.SaveTransition(sctx, identity, ev.From, ev.To, ev.At)
		}()
	})

	wg.Add(1)
	go func() {
		defer wg.Done()
		st.Run(ctx)
		pool.Close()
	}()
	return nil
}
