package runtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"sort"
	"strings"
	"time"

	dockertypes "github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/tlsconfig"
)

const defaultAPITimeout = 10 * time.Second

// composeServiceLabel carries the compose service name when the container
// was started by docker compose.
const composeServiceLabel = "com.docker.compose.service"

// dockerAPI is the subset of Docker client operations used by DockerClient.
// Mock implementations are injected in tests.
type dockerAPI interface {
	Ping(ctx context.Context) (dockertypes.Ping, error)
	ContainerList(ctx context.Context, options container.ListOptions) ([]dockertypes.Container, error)
	ContainerRestart(ctx context.Context, containerID string, options container.StopOptions) error
	Close() error
}

// Ensure the official Docker client satisfies the interface at compile time.
var _ dockerAPI = (*client.Client)(nil)

// DockerClient implements Client using the official Docker Go SDK.
type DockerClient struct {
	api     dockerAPI
	timeout time.Duration
}

// NewDockerClient initializes a Docker client for the given API host.
// certPath, when non-empty, points at a directory holding ca.pem, cert.pem
// and key.pem for a TLS-guarded TCP daemon.
func NewDockerClient(host, certPath string, timeout time.Duration) (*DockerClient, error) {
	if timeout <= 0 {
		timeout = defaultAPITimeout
	}

	opts := []client.Opt{
		client.WithAPIVersionNegotiation(),
	}
	if host != "" {
		opts = append(opts, client.WithHost(host))
	}
	if certPath != "" {
		tlsCfg, err := tlsconfig.Client(tlsconfig.Options{
			CAFile:   filepath.Join(certPath, "ca.pem"),
			CertFile: filepath.Join(certPath, "cert.pem"),
			KeyFile:  filepath.Join(certPath, "key.pem"),
		})
		if err != nil {
			return nil, fmt.Errorf("load docker tls config: %w", err)
		}
		opts = append(opts, client.WithHTTPClient(&http.Client{
			Transport: &http.Transport{TLSClientConfig: tlsCfg},
			Timeout:   timeout,
		}))
	}

	api, err := client.NewClientWithOpts(opts...)
	if err != nil {
		return nil, err
	}

	return &DockerClient{
		api:     api,
		timeout: timeout,
	}, nil
}

// Ping implements Client.
func (c *DockerClient) Ping(ctx context.Context) error {
	if c == nil || c.api == nil {
		return errors.New("docker client is not initialized")
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	_, err := c.api.Ping(ctx)
	return err
}

// Snapshot implements Client. Unhealthy services come from the daemon's
// health filter; exited services from the status filters, so a container
// without a healthcheck still shows up once it crashes.
func (c *DockerClient) Snapshot(ctx context.Context) (HealthSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	unhealthy, err := c.listServices(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("health", "unhealthy")),
	})
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("list unhealthy containers: %w", err)
	}

	exited, err := c.listServices(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("status", "exited"),
			filters.Arg("status", "dead"),
		),
	})
	if err != nil {
		return HealthSnapshot{}, fmt.Errorf("list exited containers: %w", err)
	}

	return HealthSnapshot{Unhealthy: unhealthy, Exited: exited}, nil
}

func (c *DockerClient) listServices(ctx context.Context, options container.ListOptions) ([]string, error) {
	containers, err := c.api.ContainerList(ctx, options)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool)
	var services []string
	for _, cont := range containers {
		name := serviceName(cont)
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		services = append(services, name)
	}
	sort.Strings(services)
	return services, nil
}

// Restart implements Client. The service name is resolved back to container
// IDs via the compose service label, falling back to the container name.
func (c *DockerClient) Restart(ctx context.Context, service string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	containers, err := c.api.ContainerList(ctx, container.ListOptions{All: true})
	if err != nil {
		return fmt.Errorf("list containers: %w", err)
	}

	var restarted int
	for _, cont := range containers {
		if serviceName(cont) != service {
			continue
		}
		if err := c.api.ContainerRestart(ctx, cont.ID, container.StopOptions{}); err != nil {
			return fmt.Errorf("restart %s: %w", service, err)
		}
		restarted++
	}
	if restarted == 0 {
		return fmt.Errorf("no containers found for service %q", service)
	}
	return nil
}

// Close implements Client.
func (c *DockerClient) Close() error {
	if c == nil || c.api == nil {
		return nil
	}
	return c.api.Close()
}

func serviceName(cont dockertypes.Container) string {
	if name, ok := cont.Labels[composeServiceLabel]; ok && name != "" {
		return name
	}
	for _, name := range cont.Names {
		trimmed := strings.TrimPrefix(name, "/")
		if trimmed != "" {
			return trimmed
		}
	}
	return ""
}
