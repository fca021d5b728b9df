package transport

import (
	"errors"
	"fmt"
	"strings"

	"go.bug.st/serial/enumerator"
)

// USB identifiers of the BLED112 dongle shipped with the band.
const (
	DefaultDongleVID = "2458"
	DefaultDonglePID = "0001"
)

var ErrDongleNotFound = errors.New("dongle not found")

// DetectDongle returns the name of the first USB serial port whose
// vendor/product IDs match.
func DetectDongle(vid, pid string) (string, error) {
	ports, err := enumerator.GetDetailedPortsList()
	if err != nil {
		return "", fmt.Errorf("list serial ports: %w", err)
	}

	name, err := matchDongle(ports, vid, pid)
	if err != nil {
		return "", err
	}
	transportLogger("serial", "port", name).Info("dongle detected", "vid", vid, "pid", pid)

	return name, nil
}

func matchDongle(ports []*enumerator.PortDetails, vid, pid string) (string, error) {
	for _, p := range ports {
		if p == nil || !p.IsUSB {
			continue
		}
		if sameUSBID(p.VID, vid) && sameUSBID(p.PID, pid) {
			return p.Name, nil
		}
	}

	return "", fmt.Errorf("%w: no USB port with id %s:%s among %d ports", ErrDongleNotFound, vid, pid, len(ports))
}

// sameUSBID compares hex IDs ignoring case and leading zeros.
func sameUSBID(a, b string) bool {
	norm := func(s string) string {
		s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")
		return strings.TrimLeft(s, "0")
	}

	return norm(a) == norm(b)
}
