package app

import (
	"testing"

	"github.com/skobkin/myolink/internal/config"
	"github.com/skobkin/myolink/internal/connectors"
)

func TestConnectionTarget(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.ConnectionConfig
		want string
	}{
		{name: "explicit port", cfg: config.ConnectionConfig{SerialPort: " /dev/ttyACM0 ", USBVID: "2458", USBPID: "0001"}, want: "/dev/ttyACM0"},
		{name: "detection", cfg: config.ConnectionConfig{USBVID: "2458", USBPID: "0001"}, want: "usb:2458:0001"},
	}

	for _, tc := range tests {
		if got := ConnectionTarget(tc.cfg); got != tc.want {
			t.Fatalf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestConnectionStatusFromConfig(t *testing.T) {
	status := ConnectionStatusFromConfig(config.ConnectionConfig{SerialPort: "COM3"})
	if status.State != connectors.ConnectionStateDisconnected {
		t.Fatalf("unexpected state: %q", status.State)
	}
	if status.TransportName != "serial" || status.Target != "COM3" {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Timestamp.IsZero() {
		t.Fatalf("expected timestamp to be set")
	}
}
