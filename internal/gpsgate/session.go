// Package gpsgate speaks the GpsGate TCP protocol: login, version
// negotiation, update rules and NMEA forwarding.
package gpsgate

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/phuslu/log"

	"github.com/cradlepoint/sdk-samples-sub000/internal/filter"
	"github.com/cradlepoint/sdk-samples-sub000/internal/nmea"
)

var (
	ErrConfig               = errors.New("gpsgate: invalid configuration")
	ErrNoIdentity           = fmt.Errorf("%w: neither imei nor forced credentials", ErrConfig)
	ErrUnsupportedTransport = fmt.Errorf("%w: unsupported transport", ErrConfig)
	ErrUnknownFrame         = fmt.Errorf("%w: unknown frame", nmea.ErrFormat)
	ErrServer               = errors.New("gpsgate: server error")
	ErrHandshake            = errors.New("gpsgate: handshake did not complete")
	ErrNotForwarding        = errors.New("gpsgate: session is not forwarding")
)

const (
	LOGIN_SENT       string = "login_sent"
	SESSION_RECEIVED string = "session_received"
	SERVER_VERSION   string = "server_version"
	UPDATE_RULES     string = "update_rules"
	FORWARDING       string = "forwarding"
	UNEXPECTED_FRAME string = "unexpected_frame"
	RESEND           string = "resend"
	CHECKSUM_ERROR   string = "checksum_error"
)

const TransportTCP = "tcp"

type Identity struct {
	IMEI             string
	Username         string
	Password         string
	ForceCredentials bool
}

// loginFrame picks IMEI login when an IMEI is set. Credentials are only
// used when forced and no IMEI is present.
func (id Identity) loginFrame() (string, error) {
	if id.IMEI != "" {
		return loginIMEI(id.IMEI), nil
	}
	if id.ForceCredentials && id.Username != "" && id.Password != "" {
		return loginCredentials(id.Username, id.Password), nil
	}
	return "", ErrNoIdentity
}

type SessionConfig struct {
	Transport     string
	Identity      Identity
	Major         int
	Minor         int
	Client        string
	ClientVersion string
}

type Snapshot struct {
	State       string `json:"state"`
	SessionID   string `json:"session_id,omitempty"`
	ServerTitle string `json:"server_title,omitempty"`
	ServerMajor int    `json:"server_major"`
	ServerMinor int    `json:"server_minor"`
}

// Session is the protocol state of one upstream connection. It is driven by
// a single goroutine; only Snapshot may be called concurrently.
type Session struct {
	cfg        SessionConfig
	login      string
	thresholds *filter.Thresholds
	log        log.Logger

	state       State
	sessionID   string
	serverTitle string
	serverMajor int
	serverMinor int
	snap        atomic.Value

	// OnTransition, when set, is called after every state change.
	OnTransition func(from, to State)
}

// NewSession validates the transport and identity before any I/O happens.
func NewSession(cfg SessionConfig, thresholds *filter.Thresholds, logger log.Logger) (*Session, error) {
	transport := strings.ToLower(cfg.Transport)
	if transport == "" {
		transport = TransportTCP
	}
	if transport != TransportTCP {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedTransport, cfg.Transport)
	}
	login, err := cfg.Identity.loginFrame()
	if err != nil {
		return nil, err
	}
	s := &Session{cfg: cfg, login: login, thresholds: thresholds, log: logger}
	s.log.Context = log.NewContext(nil).Str("module", "gpsgate").Value()
	s.storeSnapshot()
	return s, nil
}

func (s *Session) State() State { return s.state }

func (s *Session) Snapshot() Snapshot {
	return s.snap.Load().(Snapshot)
}

func (s *Session) storeSnapshot() {
	s.snap.Store(Snapshot{
		State:       s.state.String(),
		SessionID:   s.sessionID,
		ServerTitle: s.serverTitle,
		ServerMajor: s.serverMajor,
		ServerMinor: s.serverMinor,
	})
}

func (s *Session) setState(to State) {
	from := s.state
	s.state = to
	s.storeSnapshot()
	if from == to {
		return
	}
	s.log.Debug().Stringer("from", from).Stringer("to", to).Msg("state change")
	if s.OnTransition != nil {
		s.OnTransition(from, to)
	}
}

// NextClientToServer returns the next frame to send and advances the state.
// In a wait state the previous frame is returned again. Once forwarding,
// there is nothing left to negotiate and the result is nil.
func (s *Session) NextClientToServer() []byte {
	var body string
	switch s.state {
	case Offline, TryLogin:
		if s.state == TryLogin {
			s.log.Warn().Str("event", RESEND).Stringer("state", s.state).Msg("no session yet, resending login")
		}
		body = s.login
		s.setState(TryLogin)
		s.log.Info().Str("event", LOGIN_SENT).Msg("login")
	case HaveSession, WaitServerVersion:
		if s.state == WaitServerVersion {
			s.log.Warn().Str("event", RESEND).Stringer("state", s.state).Msg("no server version yet, resending version")
		}
		body = versionFrame(s.cfg.Major, s.cfg.Minor, s.cfg.Client, s.cfg.ClientVersion)
		s.setState(WaitServerVersion)
	case HaveServerVersion, AskUpdate:
		if s.state == AskUpdate {
			s.log.Warn().Str("event", RESEND).Stringer("state", s.state).Msg("no update rules yet, resending request")
		}
		body = updateRulesFrame()
		s.setState(AskUpdate)
	case ForwardReady:
		body = startFrame()
		s.setState(Forwarding)
		s.log.Info().Str("event", FORWARDING).Msg("forwarding nmea")
	default:
		return nil
	}
	return []byte(nmea.WrapSentence(body))
}

// ParseMessage feeds one read from the server. Several frames may arrive in
// one read; each is handled even if an earlier one fails. The result is
// false if any frame failed.
func (s *Session) ParseMessage(raw []byte) bool {
	return s.Parse(raw) == nil
}

// Parse is ParseMessage returning the joined frame errors.
func (s *Session) Parse(raw []byte) error {
	var errs []error
	for _, frag := range strings.Split(string(raw), "\n") {
		frag = strings.TrimSpace(frag)
		if frag == "" {
			continue
		}
		if err := s.parseFrame(frag); err != nil {
			s.log.Error().Err(err).Str("frame", frag).Msg("frame rejected")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Session) parseFrame(frag string) error {
	body, declared, hasChecksum, err := nmea.StripSentence(frag)
	if err != nil {
		return err
	}
	if hasChecksum && declared != nmea.CalcChecksum(body) {
		s.log.Warn().Str("event", CHECKSUM_ERROR).Str("frame", frag).Msg("frame checksum mismatch")
		return fmt.Errorf("%w: %q", nmea.ErrChecksum, frag)
	}
	t := strings.Split(body, ",")
	switch t[0] {
	case frameSession:
		return s.onSession(t)
	case frameVersion:
		return s.onVersion(t)
	case frameReturn:
		return s.onReturn(t)
	case frameValue:
		return s.onValue(t)
	case frameError:
		msg := strings.Join(t[1:], ",")
		s.log.Error().Str("reply", msg).Msg("server reported an error")
		return fmt.Errorf("%w: %s", ErrServer, msg)
	}
	return fmt.Errorf("%w: %q", ErrUnknownFrame, t[0])
}

func (s *Session) expect(want State, frame string) {
	if s.state != want {
		s.log.Warn().Str("event", UNEXPECTED_FRAME).Str("frame", frame).Stringer("state", s.state).Stringer("expected", want).Msg("unexpected frame, processing anyway")
	}
}

// $FRSES,<session id>
func (s *Session) onSession(t []string) error {
	if len(t) < 2 {
		return fmt.Errorf("%w: %s without id", nmea.ErrFormat, frameSession)
	}
	s.expect(TryLogin, frameSession)
	s.sessionID = t[1]
	s.log.Info().Str("event", SESSION_RECEIVED).Str("session_id", s.sessionID).Msg("session")
	s.setState(HaveSession)
	return nil
}

// $FRVER,<major>,<minor>,<title>
func (s *Session) onVersion(t []string) error {
	if len(t) < 4 {
		return fmt.Errorf("%w: short %s", nmea.ErrFormat, frameVersion)
	}
	major, err1 := strconv.Atoi(t[1])
	minor, err2 := strconv.Atoi(t[2])
	if err1 != nil || err2 != nil {
		return fmt.Errorf("%w: %s version %s.%s", nmea.ErrFormat, frameVersion, t[1], t[2])
	}
	s.expect(WaitServerVersion, frameVersion)
	s.serverMajor, s.serverMinor = major, minor
	s.serverTitle = strings.Join(t[3:], ",")
	s.log.Info().Str("event", SERVER_VERSION).Int("major", major).Int("minor", minor).Str("title", s.serverTitle).Msg("server version")
	s.setState(HaveServerVersion)
	return nil
}

// $FRRET,<ctx>,<command>,...
func (s *Session) onReturn(t []string) error {
	if len(t) < 3 {
		return fmt.Errorf("%w: short %s", nmea.ErrFormat, frameReturn)
	}
	if t[2] != cmdUpdateRules {
		s.log.Debug().Str("command", t[2]).Msg("ignoring command reply")
		return nil
	}
	s.expect(AskUpdate, frameReturn)
	s.log.Info().Str("event", UPDATE_RULES).Strs("args", t[3:]).Msg("update rules")
	s.setState(ForwardReady)
	return nil
}

// $FRVAL,<FilterName>,<value>
func (s *Session) onValue(t []string) error {
	if len(t) < 3 {
		return fmt.Errorf("%w: short %s", nmea.ErrFormat, frameValue)
	}
	err := s.thresholds.SetByName(t[1], t[2])
	switch {
	case errors.Is(err, filter.ErrUnknownFilter):
		s.log.Warn().Str("name", t[1]).Str("value", t[2]).Msg("ignoring unknown filter")
		return nil
	case err != nil:
		return err
	}
	s.log.Info().Str("name", t[1]).Str("value", t[2]).Msg("filter override")
	return nil
}
