package source

import (
	"context"
	"fmt"

	"github.com/jacobsa/go-serial/serial"
	"github.com/phuslu/log"
)

type SerialConfig struct {
	Port   string
	Baud   uint
	Reader ReaderConfig
}

// Serial reads NMEA from a local serial device (8N1).
type Serial struct {
	cfg SerialConfig
	log log.Logger
}

func NewSerial(cfg SerialConfig, logger log.Logger) *Serial {
	s := &Serial{cfg: cfg, log: logger}
	s.log.Context = log.NewContext(nil).Str("module", "gps-serial").Value()
	return s
}

func (s *Serial) Run(ctx context.Context, h BurstHandler) error {
	baud := s.cfg.Baud
	if baud == 0 {
		baud = 9600
	}
	port, err := serial.Open(serial.OpenOptions{
		PortName:        s.cfg.Port,
		BaudRate:        baud,
		DataBits:        8,
		StopBits:        1,
		MinimumReadSize: 1,
		ParityMode:      serial.PARITY_NONE,
	})
	if err != nil {
		return fmt.Errorf("open %s: %w", s.cfg.Port, err)
	}
	defer port.Close()
	stop := context.AfterFunc(ctx, func() { port.Close() })
	defer stop()
	s.log.Info().Str("port", s.cfg.Port).Uint("baud", baud).Msg("serial port opened")

	err = ReadBursts(ctx, port, s.cfg.Reader, h)
	if he, ok := err.(*HandlerError); ok {
		return he.Err
	}
	if ctx.Err() != nil {
		return nil
	}
	return err
}
