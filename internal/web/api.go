// Package web serves the local status endpoint and a websocket stream of
// forwarded fixes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phuslu/log"
)

type ApiConfig struct {
	ListenAddr string
}

// StatusFunc builds the body of GET /status.
type StatusFunc func() interface{}

type Api struct {
	r      chi.Router
	s      *http.Server
	config ApiConfig
	hub    *Hub
	log    log.Logger
}

func NewApi(config ApiConfig, status StatusFunc, hub *Hub, logger log.Logger) *Api {
	api := &Api{config: config, hub: hub, log: logger}
	api.log.Context = log.NewContext(nil).Str("module", "api").Value()
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(api.accessLog)
	r.Use(middleware.Recoverer)
	r.Get("/status", func(w http.ResponseWriter, r *http.Request) {
		JsonWrite(w, status())
	})
	r.Get("/stream", api.stream)

	api.r = r
	api.s = &http.Server{
		Addr:           config.ListenAddr,
		Handler:        r,
		ReadTimeout:    10 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	return api
}

func (api *Api) Handler() http.Handler { return api.r }

// Run serves until ctx is done.
func (api *Api) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", api.config.ListenAddr)
	if err != nil {
		return err
	}
	return api.Serve(ctx, ln)
}

func (api *Api) Serve(ctx context.Context, ln net.Listener) error {
	stop := context.AfterFunc(ctx, func() {
		sctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		api.s.Shutdown(sctx)
	})
	defer stop()
	api.log.Info().Str("addr", ln.Addr().String()).Msg("status api listening")
	err := api.s.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (api *Api) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		t0 := time.Now()
		next.ServeHTTP(ww, r)
		api.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Int("status", ww.Status()).
			Str("request_id", middleware.GetReqID(r.Context())).Dur("time_taken", time.Since(t0)).Msg("")
	})
}

func JsonWrite(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
