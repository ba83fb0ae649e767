// Package desktop wraps optional desktop toast notifications for watch
// events, adapted from the teacher's internal/notifications/toast.go:
// same "check runtime.GOOS at call time" shape, same library. Off Windows
// Notify returns an error instead of showing a toast.
package desktop

import (
	"fmt"
	"runtime"

	"github.com/go-toast/toast"
)

// Notifier shows a toast when a watch drains notifications, best-effort:
// a failure here never affects the caller's exit code.
type Notifier struct {
	appID string
}

// New builds a Notifier with the given AppID (falls back to a default).
func New(appID string) *Notifier {
	if appID == "" {
		appID = "task-orchestrator"
	}
	return &Notifier{appID: appID}
}

// Notify shows title/message as a toast. Off Windows this always returns
// an error, which callers are expected to log and ignore.
func (n *Notifier) Notify(title, message string) error {
	if runtime.GOOS != "windows" {
		return fmt.Errorf("desktop notifications only supported on Windows")
	}
	notification := toast.Notification{
		AppID:   n.appID,
		Title:   title,
		Message: message,
		Audio:   toast.Default,
	}
	return notification.Push()
}

// TerminalFlash sets the terminal window title to an alert via an ANSI OSC
// sequence, the fallback this package uses where Notify's toast can't run,
// adapted from internal/notifications/terminal.go's setTerminalTitle.
func TerminalFlash(message string) error {
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		fmt.Printf("\033]0;\U0001F514 %s\007", message)
		return nil
	default:
		return fmt.Errorf("terminal title manipulation not supported on %s", runtime.GOOS)
	}
}
