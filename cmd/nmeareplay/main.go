// nmeareplay plays a recorded NMEA capture into the forwarder's TCP source.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/replay"
)

func main() {
	file := flag.String("file", "", "capture written by the forwarder's record.path")
	addr := flag.String("addr", "127.0.0.1:9999", "forwarder gps listen address")
	speed := flag.Float64("speed", 1, "playback speed multiplier, 0 plays without delay")
	loop := flag.Bool("loop", false, "restart the capture when it ends")
	flag.Parse()
	log.DefaultLogger.Writer = &log.ConsoleWriter{ColorOutput: true}

	f, err := os.Open(*file)
	if err != nil {
		log.Fatal().Err(err).Msg("open capture")
	}
	recs, err := replay.NewReader(f).ReadAll()
	f.Close()
	if err != nil {
		log.Fatal().Err(err).Str("file", *file).Msg("read capture")
	}
	log.Info().Int("bursts", len(recs)).Str("file", *file).Msg("capture loaded")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	c, err := net.DialTimeout("tcp", *addr, 5*time.Second)
	if err != nil {
		log.Fatal().Err(err).Str("addr", *addr).Msg("connect")
	}
	defer c.Close()

	for {
		err = replay.Play(ctx, recs, *speed, func(r replay.Record) error {
			_, err := fmt.Fprint(c, strings.Join(r.Sentences, "\r\n")+"\r\n")
			return err
		})
		if err != nil || !*loop {
			break
		}
	}
	if err != nil && ctx.Err() == nil {
		log.Error().Err(err).Msg("replay")
		os.Exit(1)
	}
}
