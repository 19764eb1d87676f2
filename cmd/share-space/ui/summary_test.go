package ui

import (
	"net/netip"
	"strings"
	"testing"

	"sharespace/internal/report"
)

func TestRenderSummary(t *testing.T) {
	s := report.Summary{
		IP:          netip.MustParseAddr("192.168.1.20"),
		Hostname:    "share-space",
		AppPort:     "3000",
		GatewayPort: "8080",
		Root:        "/home/alice/share-space",
		Data:        "/home/alice/share-space/data",
		ID:          "8d1c4e2f9a7b",
		User:        "alice",
		UnitName:    "share-space.service",
		Ready:       true,
		Readiness:   "healthy",
	}

	out := RenderSummary(s)
	for _, want := range []string{
		"share-space is running",
		"http://192.168.1.20:3000",
		"http://share-space.local:3000",
		"http://192.168.1.20:8080",
		"cd /home/alice/share-space && docker compose logs -f",
		"systemctl status share-space.service",
		"8d1c4e2f9a7b",
		"1. Open http://192.168.1.20:3000",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderSummary() missing %q in:\n%s", want, out)
		}
	}
	if strings.Contains(out, "Diagnostics") {
		t.Fatalf("RenderSummary() printed diagnostics for a ready stack:\n%s", out)
	}
}

func TestRenderSummaryNotReady(t *testing.T) {
	s := report.Summary{
		Hostname:    "share-space",
		AppPort:     "3000",
		Root:        "/srv/share-space",
		Data:        "/srv/share-space/data",
		Readiness:   "starting",
		Diagnostics: []string{"app: starting"},
	}

	out := RenderSummary(s)
	for _, want := range []string{"the app is starting", "Diagnostics", "app: starting", "http://localhost:3000"} {
		if !strings.Contains(out, want) {
			t.Fatalf("RenderSummary() missing %q in:\n%s", want, out)
		}
	}
}
