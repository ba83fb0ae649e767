package desktop

import (
	"runtime"
	"testing"
)

func TestNewDefaultsAppID(t *testing.T) {
	n := New("")
	if n.appID != "task-orchestrator" {
		t.Errorf("expected default appID, got %q", n.appID)
	}
	n2 := New("custom")
	if n2.appID != "custom" {
		t.Errorf("expected custom appID preserved, got %q", n2.appID)
	}
}

func TestNotifyOffWindowsAlwaysErrors(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("toast push behavior only verifiable on windows")
	}
	n := New("")
	if err := n.Notify("title", "message"); err == nil {
		t.Error("expected Notify to fail off Windows")
	}
}

func TestTerminalFlashSupportedPlatforms(t *testing.T) {
	switch runtime.GOOS {
	case "windows", "linux", "darwin":
		if err := TerminalFlash("hello"); err != nil {
			t.Errorf("expected TerminalFlash to succeed on %s, got %v", runtime.GOOS, err)
		}
	default:
		if err := TerminalFlash("hello"); err == nil {
			t.Errorf("expected TerminalFlash to fail on unsupported GOOS %s", runtime.GOOS)
		}
	}
}
