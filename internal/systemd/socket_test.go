package systemd

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
)

func TestOutsideSystemd(t *testing.T) {
	t.Setenv("LISTEN_PID", "")
	t.Setenv("LISTEN_FDS", "")
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	listeners, err := GetListeners()
	if err != nil {
		t.Fatalf("GetListeners: %v", err)
	}
	if listeners.Activated || listeners.HTTP != nil || listeners.Metrics != nil {
		t.Fatalf("expected no activated listeners, got %+v", listeners)
	}

	if err := NotifyReady(); err != nil {
		t.Errorf("NotifyReady without a notify socket: %v", err)
	}
	if err := NotifyStatus("draining"); err != nil {
		t.Errorf("NotifyStatus without a notify socket: %v", err)
	}

	// Returns at once when no watchdog is configured
	RunWatchdog(context.Background(), zerolog.Nop())
}
