package app

import "testing"

func setBuildInfo(t *testing.T, version, date string) {
	t.Helper()
	origVersion, origDate := Version, BuildDate
	t.Cleanup(func() {
		Version, BuildDate = origVersion, origDate
	})
	Version, BuildDate = version, date
}

func TestBuildVersion(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "defaults to dev", in: "", want: "dev"},
		{name: "trims value", in: " 1.2.3 ", want: "1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuildInfo(t, tt.in, "")
			if got := BuildVersion(); got != tt.want {
				t.Fatalf("BuildVersion() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBuildDateYMD(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "empty stays empty", in: "", want: ""},
		{name: "rfc3339 formatted", in: "2026-01-30T14:55:03Z", want: "2026-01-30"},
		{name: "date prefix", in: "2026-01-30 build 7", want: "2026-01-30"},
		{name: "unknown format returns as is", in: "not-a-date", want: "not-a-date"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setBuildInfo(t, "", tt.in)
			if got := BuildDateYMD(); got != tt.want {
				t.Fatalf("BuildDateYMD() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestBanner(t *testing.T) {
	setBuildInfo(t, "0.1.2", "2026-01-30T14:55:03Z")
	if got := Banner(); got != "myolink 0.1.2 (2026-01-30)" {
		t.Fatalf("Banner() = %q", got)
	}

	setBuildInfo(t, "", "")
	if got := Banner(); got != "myolink dev" {
		t.Fatalf("Banner() = %q", got)
	}
}
