// Package identity resolves the current agent identifier. It is a pure
// function of environment: no state, no I/O beyond reading env vars and
// the local hostname.
package identity

import (
	"crypto/sha256"
	"fmt"
	"os"
)

// EnvAgentID is the environment variable that, when set, is used verbatim
// as the current agent's identifier.
const EnvAgentID = "TM_AGENT_ID"

// Current resolves the calling process's agent id: TM_AGENT_ID if set,
// otherwise a stable "<user>_<short-hash(host)>" derived identifier.
func Current() string {
	if v := os.Getenv(EnvAgentID); v != "" {
		return v
	}
	return Derive(currentUser(), currentHost())
}

// Derive builds a stable agent id from a user name and hostname: hash the
// distinguishing input and keep a short readable prefix.
func Derive(user, host string) string {
	if user == "" {
		user = "user"
	}
	h := sha256.Sum256([]byte(host))
	return fmt.Sprintf("%s_%x", user, h[:4])
}

func currentUser() string {
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	return "user"
}

func currentHost() string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		return "unknown-host"
	}
	return h
}
