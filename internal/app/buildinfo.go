package app

import (
	"strings"
	"time"
)

var (
	// Version is filled by ldflags in release builds.
	Version = "dev"
	// BuildDate is filled by ldflags in release builds.
	BuildDate = ""
)

func BuildVersion() string {
	if v := strings.TrimSpace(Version); v != "" {
		return v
	}
	return "dev"
}

// BuildDateYMD normalises BuildDate to YYYY-MM-DD when it can be parsed and
// returns it unchanged otherwise.
func BuildDateYMD() string {
	raw := strings.TrimSpace(BuildDate)
	if raw == "" {
		return ""
	}

	if parsed, err := time.Parse(time.RFC3339, raw); err == nil {
		return parsed.Format(time.DateOnly)
	}
	if len(raw) >= len(time.DateOnly) {
		if _, err := time.Parse(time.DateOnly, raw[:len(time.DateOnly)]); err == nil {
			return raw[:len(time.DateOnly)]
		}
	}

	return raw
}

// Banner is the one-line program identification printed by -version.
func Banner() string {
	b := Name + " " + BuildVersion()
	if date := BuildDateYMD(); date != "" {
		b += " (" + date + ")"
	}
	return b
}
