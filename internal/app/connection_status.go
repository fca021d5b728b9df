package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/skobkin/myolink/internal/config"
	"github.com/skobkin/myolink/internal/connectors"
)

const transportSerial = "serial"

// ConnectionTarget names the configured dongle endpoint. Without an explicit
// port it describes the USB IDs used for detection.
func ConnectionTarget(cfg config.ConnectionConfig) string {
	if port := strings.TrimSpace(cfg.SerialPort); port != "" {
		return port
	}
	return fmt.Sprintf("usb:%s:%s", strings.TrimSpace(cfg.USBVID), strings.TrimSpace(cfg.USBPID))
}

func ConnectionStatusFromConfig(cfg config.ConnectionConfig) connectors.ConnectionStatus {
	return connectors.ConnectionStatus{
		State:         connectors.ConnectionStateDisconnected,
		TransportName: transportSerial,
		Target:        ConnectionTarget(cfg),
		Timestamp:     time.Now(),
	}
}
