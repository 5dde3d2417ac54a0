package gpsgate

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	frameLogin   = "FRLIN"
	frameSession = "FRSES"
	frameVersion = "FRVER"
	frameCommand = "FRCMD"
	frameReturn  = "FRRET"
	frameValue   = "FRVAL"
	frameError   = "FRERR"
	frameStart   = "FRWDT"

	cmdUpdateRules = "_getupdaterules"
)

func loginIMEI(imei string) string {
	return fmt.Sprintf("%s,IMEI,%s,", frameLogin, imei)
}

func loginCredentials(user, password string) string {
	return fmt.Sprintf("%s,,%s,%s", frameLogin, user, EncryptPassword(password))
}

func versionFrame(major, minor int, client, clientVersion string) string {
	return fmt.Sprintf("%s,%d,%d,%s %s", frameVersion, major, minor, client, clientVersion)
}

func updateRulesFrame() string {
	return frameCommand + ",," + cmdUpdateRules + ",Inline"
}

func startFrame() string {
	return frameStart + ",NMEA"
}

// ParseVersion splits "<major>.<minor>".
func ParseVersion(s string) (major, minor int, err error) {
	parts := strings.SplitN(strings.TrimSpace(s), ".", 2)
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("%w: version %q", ErrConfig, s)
	}
	if major, err = strconv.Atoi(parts[0]); err != nil {
		return 0, 0, fmt.Errorf("%w: version %q", ErrConfig, s)
	}
	if minor, err = strconv.Atoi(parts[1]); err != nil {
		return 0, 0, fmt.Errorf("%w: version %q", ErrConfig, s)
	}
	return major, minor, nil
}
