// Package compose renders and validates the stack's Docker Compose file.
//
// The descriptor is rebuilt from scratch on every install. Service order
// and field order are fixed, so the same settings and runtime API version
// always produce the same bytes.
package compose

import (
	"fmt"
	"strconv"
	"time"

	"sharespace/config"
)

// Service names in the rendered descriptor.
const (
	ServiceGateway   = "signal-api"
	ServiceApp       = "app"
	ServiceUpdater   = "watchtower"
	ServiceDiscovery = "avahi"
	ServiceAutoheal  = "autoheal"
)

// ServiceNames lists the services in the order they are rendered.
func ServiceNames() []string {
	return []string{ServiceGateway, ServiceApp, ServiceUpdater, ServiceDiscovery, ServiceAutoheal}
}

const (
	updaterOptInLabel = "com.centurylinklabs.watchtower.enable"
	dockerSocket      = "/var/run/docker.sock:/var/run/docker.sock"
	apiVersionEnv     = "DOCKER_API_VERSION"
)

// Document is the top level of a compose file.
type Document struct {
	Name     string             `yaml:"name"`
	Services Services           `yaml:"services"`
	Networks map[string]Network `yaml:"networks,omitempty"`
}

// Service is the subset of the compose service schema the stack uses.
// Field order here is the order fields are written in.
type Service struct {
	Image       string                `yaml:"image"`
	Restart     string                `yaml:"restart,omitempty"`
	DependsOn   map[string]Dependency `yaml:"depends_on,omitempty"`
	NetworkMode string                `yaml:"network_mode,omitempty"`
	Ports       []string              `yaml:"ports,omitempty"`
	Volumes     []string              `yaml:"volumes,omitempty"`
	Environment []string              `yaml:"environment,omitempty"`
	Labels      []string              `yaml:"labels,omitempty"`
	HealthCheck *HealthCheck          `yaml:"healthcheck,omitempty"`
	Networks    []string              `yaml:"networks,omitempty"`
}

// Dependency gates a service on another service's state.
type Dependency struct {
	Condition string `yaml:"condition"`
}

// HealthCheck is a liveness check run by the Docker daemon.
type HealthCheck struct {
	Test        []string `yaml:"test,flow"`
	Interval    string   `yaml:"interval"`
	Timeout     string   `yaml:"timeout"`
	Retries     int      `yaml:"retries"`
	StartPeriod string   `yaml:"start_period,omitempty"`
}

// Network is a user-defined network.
type Network struct {
	Driver string `yaml:"driver"`
}

// Topology builds the five-service stack for settings. apiVersion is
// written into the auto-update watcher's environment and nowhere else.
func Topology(s config.Settings, apiVersion string) Document {
	app := s.AppPort()
	gateway := s.GatewayPort()

	return Document{
		Name: s.Project,
		Services: Services{
			{Name: ServiceGateway, Service: Service{
				Image:       s.Images.Gateway,
				Restart:     "always",
				Ports:       []string{s.Ports.Gateway},
				Volumes:     []string{"./data/signal-cli:/home/.local/share/signal-cli"},
				Environment: []string{"MODE=json-rpc"},
				HealthCheck: &HealthCheck{
					Test:        []string{"CMD", "curl", "-f", "http://localhost:" + gateway.ContainerPort + "/v1/health"},
					Interval:    "30s",
					Timeout:     "10s",
					Retries:     3,
					StartPeriod: "30s",
				},
				Networks: []string{s.Network},
			}},
			{Name: ServiceApp, Service: Service{
				Image:     s.Images.App,
				Restart:   "always",
				DependsOn: map[string]Dependency{ServiceGateway: {Condition: "service_healthy"}},
				Ports:     []string{s.Ports.App},
				Volumes:   []string{"./data:/app/data"},
				Environment: []string{
					"PORT=" + app.ContainerPort,
					"SIGNAL_API_URL=http://" + ServiceGateway + ":" + gateway.ContainerPort,
					"DATA_DIR=/app/data",
				},
				Labels: []string{updaterOptInLabel + "=true"},
				HealthCheck: &HealthCheck{
					Test:        []string{"CMD", "wget", "-q", "--spider", "http://localhost:" + app.ContainerPort + "/health"},
					Interval:    "30s",
					Timeout:     "10s",
					Retries:     3,
					StartPeriod: "20s",
				},
				Networks: []string{s.Network},
			}},
			// The watcher joins no network on purpose: attaching it to the
			// application network has been seen to break connectivity of the
			// containers it watches. It only needs the Docker socket.
			{Name: ServiceUpdater, Service: Service{
				Image:   s.Images.Updater,
				Restart: "always",
				Volumes: []string{dockerSocket},
				Environment: []string{
					"WATCHTOWER_POLL_INTERVAL=" + seconds(s.UpdateInterval),
					"WATCHTOWER_CLEANUP=true",
					"WATCHTOWER_LABEL_ENABLE=true",
					apiVersionEnv + "=" + apiVersion,
				},
			}},
			// Host networking is required for mDNS broadcasts to reach the LAN.
			{Name: ServiceDiscovery, Service: Service{
				Image:       s.Images.Discovery,
				Restart:     "always",
				NetworkMode: "host",
				Environment: []string{"SERVER_HOST_NAME=" + s.Hostname},
				HealthCheck: &HealthCheck{
					Test:     []string{"CMD-SHELL", "pgrep avahi-daemon || exit 1"},
					Interval: "30s",
					Timeout:  "5s",
					Retries:  3,
				},
			}},
			{Name: ServiceAutoheal, Service: Service{
				Image:       s.Images.Autoheal,
				Restart:     "always",
				Volumes:     []string{dockerSocket},
				Environment: []string{"AUTOHEAL_CONTAINER_LABEL=all"},
			}},
		},
		Networks: map[string]Network{
			s.Network: {Driver: "bridge"},
		},
	}
}

func seconds(d time.Duration) string {
	return strconv.FormatInt(int64(d/time.Second), 10)
}

// Lookup returns the named service.
func (d Document) Lookup(name string) (Service, error) {
	for _, ns := range d.Services {
		if ns.Name == name {
			return ns.Service, nil
		}
	}
	return Service{}, fmt.Errorf("service %q not in descriptor", name)
}
