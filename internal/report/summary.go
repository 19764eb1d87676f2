package report

import (
	"fmt"
	"net/netip"
)

// Summary is the post-install report. It is built from values the run
// already resolved and has no side effects.
type Summary struct {
	IP          netip.Addr
	Hostname    string // mDNS name without the .local suffix
	AppPort     string
	GatewayPort string
	Root        string
	Data        string
	ID          string
	User        string
	UnitName    string

	// RuntimeInstalled is set when this run added User to the docker group.
	RuntimeInstalled bool
	Ready            bool
	Readiness        string
	Diagnostics      []string
}

type Item struct {
	Label string
	Value string
}

func (s Summary) host() string {
	if s.IP.IsValid() {
		return s.IP.String()
	}
	return "localhost"
}

// URLs lists where the app and gateway can be reached, by address and by
// the discovery hostname.
func (s Summary) URLs() []Item {
	items := []Item{
		{Label: "App", Value: fmt.Sprintf("http://%s:%s", s.host(), s.AppPort)},
		{Label: "App (local name)", Value: fmt.Sprintf("http://%s.local:%s", s.Hostname, s.AppPort)},
	}
	if s.GatewayPort != "" {
		items = append(items, Item{Label: "Signal API", Value: fmt.Sprintf("http://%s:%s", s.host(), s.GatewayPort)})
	}
	return items
}

// Commands are the day-to-day operations, scoped to the install root.
func (s Summary) Commands() []Item {
	return []Item{
		{Label: "View logs", Value: fmt.Sprintf("cd %s && docker compose logs -f", s.Root)},
		{Label: "Restart", Value: fmt.Sprintf("cd %s && docker compose restart", s.Root)},
		{Label: "Stop", Value: fmt.Sprintf("cd %s && docker compose down", s.Root)},
		{Label: "Start", Value: fmt.Sprintf("cd %s && docker compose up -d", s.Root)},
		{Label: "Boot unit", Value: fmt.Sprintf("systemctl status %s", s.UnitName)},
	}
}

// Details lists where things live on disk.
func (s Summary) Details() []Item {
	items := []Item{
		{Label: "Install root", Value: s.Root},
		{Label: "Data", Value: s.Data},
	}
	if s.ID != "" {
		items = append(items, Item{Label: "Installation ID", Value: s.ID})
	}
	return items
}

// NextSteps is the fixed checklist printed at the end of an install.
func (s Summary) NextSteps() []string {
	steps := []string{
		fmt.Sprintf("Open http://%s:%s in a browser on your home network", s.host(), s.AppPort),
		"Link your Signal account from the app's setup page",
		fmt.Sprintf("Back up %s regularly; it holds all persistent data", s.Data),
	}
	if s.RuntimeInstalled && s.User != "" && s.User != "root" {
		steps = append(steps, fmt.Sprintf("Log out and back in so %s can run docker without sudo", s.User))
	}
	return steps
}
