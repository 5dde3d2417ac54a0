// Package forwarder runs the per-burst pipeline: aggregate, filter, rewrite,
// forward upstream and announce the outcome.
package forwarder

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/aggregator"
	"github.com/cradlepoint/sdk-samples-sub000/internal/events"
	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/nmea"
)

const (
	FIX_PUBLISHED  string = "fix_published"
	FIX_FILTERED   string = "fix_filtered"
	CHECKSUM_ERROR string = "checksum_error"
	FORMAT_ERROR   string = "format_error"
)

// ErrUnavailable is returned by an Upstream that is reconnecting. The burst
// is dropped and the fix is not published.
var ErrUnavailable = errors.New("upstream unavailable")

// Upstream receives the sentences of a publishable burst.
type Upstream interface {
	Forward(ctx context.Context, sentences []string) error
}

type Emitter interface {
	Emit(ctx context.Context, topic string, data interface{}) error
}

type Counters struct {
	Bursts         uint64 `json:"bursts"`
	Sentences      uint64 `json:"sentences"`
	ChecksumErrors uint64 `json:"checksum_errors"`
	FormatErrors   uint64 `json:"format_errors"`
	Published      uint64 `json:"published"`
	Filtered       uint64 `json:"filtered"`
	Dropped        uint64 `json:"dropped"`
}

type Config struct {
	Identity string
	FixTime  bool
}

type Forwarder struct {
	cfg      Config
	agg      *aggregator.Aggregator
	upstream Upstream
	emitter  Emitter
	log      log.Logger

	bursts, sentences, checksumErrors, formatErrors, published, filtered, dropped uint64
}

// New builds a forwarder. emitter may be nil. The upstream may be swapped
// later with SetUpstream when the connection is re-established.
func New(cfg Config, agg *aggregator.Aggregator, upstream Upstream, emitter Emitter, logger log.Logger) *Forwarder {
	f := &Forwarder{cfg: cfg, agg: agg, upstream: upstream, emitter: emitter, log: logger}
	f.log.Context = log.NewContext(nil).Str("module", "forwarder").Value()
	return f
}

func (f *Forwarder) SetUpstream(u Upstream) { f.upstream = u }

// HandleBurst processes the complete lines of one receive. Sentence errors
// are counted and logged; only an upstream failure is returned.
func (f *Forwarder) HandleBurst(ctx context.Context, lines []string, now time.Time) error {
	atomic.AddUint64(&f.bursts, 1)
	f.agg.Start(now)
	// sentences failing checksum or format checks are not forwarded
	var sentences []string
	seen := false
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		seen = true
		atomic.AddUint64(&f.sentences, 1)
		if _, err := f.agg.ParseSentence(line); err != nil {
			switch {
			case errors.Is(err, nmea.ErrChecksum):
				atomic.AddUint64(&f.checksumErrors, 1)
				f.log.Warn().Err(err).Str("event", CHECKSUM_ERROR).Msg("sentence dropped")
			default:
				atomic.AddUint64(&f.formatErrors, 1)
				f.log.Warn().Err(err).Str("event", FORMAT_ERROR).Msg("sentence dropped")
			}
			continue
		}
		sentences = append(sentences, line)
	}
	if !seen {
		return nil
	}

	ok, reason := f.agg.End()
	candidate := f.agg.Candidate()
	if !ok {
		atomic.AddUint64(&f.filtered, 1)
		f.log.Debug().Str("event", FIX_FILTERED).Str("reason", string(reason)).Msg("burst filtered")
		f.emit(ctx, events.TopicFixFiltered, reason)
		return nil
	}

	out := sentences
	if f.cfg.FixTime {
		out = f.rewriteTime(sentences, now)
	}
	if f.upstream != nil {
		if err := f.upstream.Forward(ctx, out); err != nil {
			if errors.Is(err, ErrUnavailable) {
				atomic.AddUint64(&f.dropped, 1)
				f.log.Warn().Err(err).Str("reason", string(reason)).Msg("burst dropped")
				return nil
			}
			return err
		}
	}
	f.agg.Publish(now)
	atomic.AddUint64(&f.published, 1)
	f.log.Info().Str("event", FIX_PUBLISHED).Str("reason", string(reason)).EmbedObject(candidate).Msg("fix forwarded")
	f.emit(ctx, events.TopicFixPublished, reason)
	return nil
}

func (f *Forwarder) rewriteTime(sentences []string, now time.Time) []string {
	out := make([]string, len(sentences))
	for i, s := range sentences {
		r, changed, err := nmea.FixTimeSentence(s, now)
		if err != nil {
			f.log.Debug().Err(err).Msg("time rewrite skipped")
			out[i] = s
			continue
		}
		if !changed {
			f.log.Debug().Str("sentence_type", sentenceType(s)).Msg("no time field to rewrite, passed through")
			out[i] = s
			continue
		}
		out[i] = r
	}
	return out
}

func sentenceType(s string) string {
	t, err := nmea.Tokens(s)
	if err != nil || len(t) == 0 {
		return ""
	}
	return t[0]
}

func (f *Forwarder) emit(ctx context.Context, topic string, reason filter.Reason) {
	if f.emitter == nil {
		return
	}
	ev := events.FixEvent{Identity: f.cfg.Identity, Reason: string(reason), Fix: f.agg.Candidate()}
	if err := f.emitter.Emit(ctx, topic, ev); err != nil {
		f.log.Error().Err(err).Str("topic", topic).Msg("emit failed")
	}
}

func (f *Forwarder) Counters() Counters {
	return Counters{
		Bursts:         atomic.LoadUint64(&f.bursts),
		Sentences:      atomic.LoadUint64(&f.sentences),
		ChecksumErrors: atomic.LoadUint64(&f.checksumErrors),
		FormatErrors:   atomic.LoadUint64(&f.formatErrors),
		Published:      atomic.LoadUint64(&f.published),
		Filtered:       atomic.LoadUint64(&f.filtered),
		Dropped:        atomic.LoadUint64(&f.dropped),
	}
}
