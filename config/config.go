// Package config holds the installer settings.
//
// Settings are read from an optional YAML file (default
// /etc/share-space/config.yaml). Every field has a default, so a host with
// no file installs the stock stack. Fields set in the file override the
// defaults one by one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/go-connections/nat"
	"gopkg.in/yaml.v3"
)

// DefaultPath is where the installer looks for settings when --config is unset.
const DefaultPath = "/etc/share-space/config.yaml"

// Images names the container image for each service in the stack.
type Images struct {
	App       string `yaml:"app"`
	Gateway   string `yaml:"gateway"`
	Updater   string `yaml:"updater"`
	Discovery string `yaml:"discovery"`
	Autoheal  string `yaml:"autoheal"`
}

// Ports holds docker-style "host:container" publish specs.
type Ports struct {
	App     string `yaml:"app"`
	Gateway string `yaml:"gateway"`
}

// Readiness bounds the post-launch wait for the application container.
type Readiness struct {
	Attempts int           `yaml:"attempts"`
	Interval time.Duration `yaml:"interval"`
}

// Settings is the complete installer configuration.
type Settings struct {
	InstallDir string `yaml:"install_dir"` // relative to the real user's home
	Project    string `yaml:"project"`
	Hostname   string `yaml:"hostname"` // advertised over mDNS as <hostname>.local
	Network    string `yaml:"network"`

	Images Images `yaml:"images"`
	Ports  Ports  `yaml:"ports"`

	UpdateInterval     time.Duration `yaml:"update_interval"`
	APIVersionFallback string        `yaml:"api_version_fallback"`
	Readiness          Readiness     `yaml:"readiness"`

	StateDir string `yaml:"state_dir"`
	UnitName string `yaml:"unit_name"`
	UnitDir  string `yaml:"unit_dir"`
}

// Default returns the stock settings.
func Default() Settings {
	return Settings{
		InstallDir: "share-space",
		Project:    "share-space",
		Hostname:   "share-space",
		Network:    "share-space-net",
		Images: Images{
			App:       "ghcr.io/share-space/share-space:latest",
			Gateway:   "bbernhard/signal-cli-rest-api:latest",
			Updater:   "containrrr/watchtower:latest",
			Discovery: "flungo/avahi:latest",
			Autoheal:  "willfarrell/autoheal:latest",
		},
		Ports: Ports{
			App:     "3000:3000",
			Gateway: "8080:8080",
		},
		UpdateInterval:     5 * time.Minute,
		APIVersionFallback: "1.44",
		Readiness: Readiness{
			Attempts: 12,
			Interval: 5 * time.Second,
		},
		StateDir: "/var/lib/share-space",
		UnitName: "share-space.service",
		UnitDir:  "/etc/systemd/system",
	}
}

// Load reads settings from path on top of Default. A missing file yields
// the defaults.
func Load(path string) (Settings, error) {
	s := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return s, nil
		}
		return Settings{}, fmt.Errorf("read settings: %w", err)
	}

	if err := yaml.Unmarshal(data, &s); err != nil {
		return Settings{}, fmt.Errorf("parse settings %s: %w", path, err)
	}
	if err := s.Validate(); err != nil {
		return Settings{}, fmt.Errorf("invalid settings %s: %w", path, err)
	}
	return s, nil
}

// Validate rejects settings the installer cannot act on.
func (s Settings) Validate() error {
	required := []struct {
		name, value string
	}{
		{"install_dir", s.InstallDir},
		{"project", s.Project},
		{"hostname", s.Hostname},
		{"network", s.Network},
		{"images.app", s.Images.App},
		{"images.gateway", s.Images.Gateway},
		{"images.updater", s.Images.Updater},
		{"images.discovery", s.Images.Discovery},
		{"images.autoheal", s.Images.Autoheal},
		{"api_version_fallback", s.APIVersionFallback},
		{"state_dir", s.StateDir},
		{"unit_name", s.UnitName},
		{"unit_dir", s.UnitDir},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			return fmt.Errorf("%s must not be empty", r.name)
		}
	}
	if strings.ContainsRune(s.InstallDir, os.PathSeparator) || s.InstallDir == "." || s.InstallDir == ".." {
		return fmt.Errorf("install_dir %q must be a single directory name", s.InstallDir)
	}
	if !strings.HasSuffix(s.UnitName, ".service") {
		return fmt.Errorf("unit_name %q must end in .service", s.UnitName)
	}
	if _, err := ParsePort(s.Ports.App); err != nil {
		return fmt.Errorf("ports.app: %w", err)
	}
	if _, err := ParsePort(s.Ports.Gateway); err != nil {
		return fmt.Errorf("ports.gateway: %w", err)
	}
	if s.UpdateInterval < time.Second {
		return fmt.Errorf("update_interval %s is below 1s", s.UpdateInterval)
	}
	if s.Readiness.Attempts < 1 {
		return fmt.Errorf("readiness.attempts must be at least 1")
	}
	if s.Readiness.Interval < 0 {
		return fmt.Errorf("readiness.interval must not be negative")
	}
	return nil
}

// PortMapping is one published TCP port.
type PortMapping struct {
	HostPort      string
	ContainerPort string
}

// ParsePort parses a single "host:container" publish spec. Ranges and
// multi-port specs are rejected: each service exposes exactly one port.
func ParsePort(spec string) (PortMapping, error) {
	mappings, err := nat.ParsePortSpec(spec)
	if err != nil {
		return PortMapping{}, fmt.Errorf("parse port %q: %w", spec, err)
	}
	if len(mappings) != 1 {
		return PortMapping{}, fmt.Errorf("port %q must map exactly one port, got %d", spec, len(mappings))
	}
	m := mappings[0]
	if m.Port.Proto() != "tcp" {
		return PortMapping{}, fmt.Errorf("port %q must be tcp", spec)
	}
	if m.Binding.HostPort == "" {
		return PortMapping{}, fmt.Errorf("port %q has no host port", spec)
	}
	return PortMapping{HostPort: m.Binding.HostPort, ContainerPort: m.Port.Port()}, nil
}

// AppPort returns the parsed application port. Settings are validated on
// load, so the zero value is only seen for hand-built invalid settings.
func (s Settings) AppPort() PortMapping {
	p, _ := ParsePort(s.Ports.App)
	return p
}

// GatewayPort returns the parsed messaging gateway port.
func (s Settings) GatewayPort() PortMapping {
	p, _ := ParsePort(s.Ports.Gateway)
	return p
}
