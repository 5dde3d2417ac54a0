package gpsgate

type State int

const (
	Offline State = iota
	TryLogin
	HaveSession
	WaitServerVersion
	HaveServerVersion
	AskUpdate
	ForwardReady
	Forwarding
)

var stateNames = [...]string{
	Offline:           "OFFLINE",
	TryLogin:          "TRY_LOGIN",
	HaveSession:       "HAVE_SESSION",
	WaitServerVersion: "WAIT_SERVER_VERSION",
	HaveServerVersion: "HAVE_SERVER_VERSION",
	AskUpdate:         "ASK_UPDATE",
	ForwardReady:      "FORWARD_READY",
	Forwarding:        "FORWARDING",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "UNKNOWN"
	}
	return stateNames[s]
}

// waiting reports whether the session is blocked on a server reply.
func (s State) waiting() bool {
	switch s {
	case TryLogin, WaitServerVersion, AskUpdate:
		return true
	}
	return false
}
