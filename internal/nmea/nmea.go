// Package nmea implements the small subset of NMEA 0183 framing needed to
// validate, rebuild and retime GPS sentences.
package nmea

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	gonmea "github.com/adrianmo/go-nmea"
)

var (
	// ErrFormat reports a structurally broken sentence. It points at a
	// protocol or producer bug rather than at the link.
	ErrFormat = errors.New("nmea: malformed sentence")
	// ErrChecksum reports a declared checksum that does not match the body,
	// which points at transport corruption.
	ErrChecksum = errors.New("nmea: checksum mismatch")
	// ErrNoChecksum is a format error: strict validation needs a declared checksum.
	ErrNoChecksum = fmt.Errorf("%w: missing checksum", ErrFormat)
)

// Talker is the only talker id dispatched.
const Talker = "GP"

const (
	TypeGGA = Talker + gonmea.TypeGGA
	TypeRMC = Talker + gonmea.TypeRMC
	TypeVTG = Talker + gonmea.TypeVTG
)

// StripSentence removes the leading '$' and trailing CR/LF. When a '*'
// delimiter is present the two hex digits after it are returned as the
// declared checksum and hasChecksum is true.
func StripSentence(raw string) (body string, checksum int, hasChecksum bool, err error) {
	s := strings.TrimRight(raw, "\r\n")
	s = strings.TrimPrefix(s, "$")
	star := strings.IndexByte(s, '*')
	if star == -1 {
		return s, 0, false, nil
	}
	ck := s[star+1:]
	if len(ck) < 2 {
		return "", 0, false, fmt.Errorf("%w: short checksum %q", ErrFormat, ck)
	}
	v, perr := strconv.ParseUint(ck[:2], 16, 8)
	if perr != nil {
		return "", 0, false, fmt.Errorf("%w: bad checksum %q", ErrFormat, ck[:2])
	}
	return s[:star], int(v), true, nil
}

// CalcChecksum XOR-folds every byte of body.
func CalcChecksum(body string) int {
	var sum byte
	for i := 0; i < len(body); i++ {
		sum ^= body[i]
	}
	return int(sum)
}

// ValidateChecksum compares the declared checksum of raw with the computed
// one. A sentence without a declared checksum is an error.
func ValidateChecksum(raw string) (bool, error) {
	body, declared, ok, err := StripSentence(raw)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, ErrNoChecksum
	}
	return declared == CalcChecksum(body), nil
}

// WrapSentence turns a body into a complete sentence: '$', body, '*', two
// upper-case hex digits and CRLF. Input that already starts with '$' is
// returned unchanged.
func WrapSentence(body string) string {
	if strings.HasPrefix(body, "$") {
		return body
	}
	return fmt.Sprintf("$%s*%02X\r\n", body, CalcChecksum(body))
}

// Tokens strips raw and splits the body on commas. Fewer than two tokens is
// a format error.
func Tokens(raw string) ([]string, error) {
	body, _, _, err := StripSentence(raw)
	if err != nil {
		return nil, err
	}
	tokens := strings.Split(body, ",")
	if len(tokens) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrFormat, raw)
	}
	return tokens, nil
}

// FixTimeSentence overwrites the UTC time token of a GPGGA or GPRMC sentence
// (and the date token of GPRMC) with t, or with the current time when t is
// zero, and rewraps it with a fresh checksum. Other sentence types are
// returned unchanged with changed=false so the caller can report them.
func FixTimeSentence(raw string, t time.Time) (out string, changed bool, err error) {
	tokens, err := Tokens(raw)
	if err != nil {
		return "", false, err
	}
	if t.IsZero() {
		t = time.Now()
	}
	t = t.UTC()

	switch tokens[0] {
	case TypeGGA:
		tokens[1] = formatTime(t, tokens[1])
	case TypeRMC:
		if len(tokens) < 10 {
			return "", false, fmt.Errorf("%w: short %s", ErrFormat, TypeRMC)
		}
		tokens[1] = formatTime(t, tokens[1])
		tokens[9] = t.Format("020106")
	default:
		return raw, false, nil
	}
	return WrapSentence(strings.Join(tokens, ",")), true, nil
}

// formatTime renders hhmmss keeping the fractional precision of the token
// being replaced.
func formatTime(t time.Time, old string) string {
	s := t.Format("150405")
	dot := strings.IndexByte(old, '.')
	if dot == -1 {
		return s
	}
	digits := len(old) - dot - 1
	if digits <= 0 {
		return s + "."
	}
	if digits > 9 {
		digits = 9
	}
	frac := fmt.Sprintf("%09d", t.Nanosecond())[:digits]
	return s + "." + frac
}
