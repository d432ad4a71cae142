package dockermanage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/containerd/errdefs"
	"github.com/moby/moby/api/pkg/stdcopy"
	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
	"github.com/sethvargo/go-retry"
	"go.uber.org/multierr"
)

const (
	defaultReadinessTimeout = 30 * time.Second
	defaultReadinessDelay   = 500 * time.Millisecond
)

// Container is a running Docker container managed by this package.
type Container struct {
	ID     string
	Image  string
	Labels map[string]string

	ports network.PortMap
}

// HostPortIPv4 returns the host port that containerPort (TCP) is published on for IPv4.
func (c *Container) HostPortIPv4(containerPort int) (int, bool) {
	return c.hostPort(containerPort, func(b network.PortBinding) bool {
		return !b.HostIP.IsValid() || b.HostIP.Unmap().Is4()
	})
}

// HostPortIPv6 returns the host port that containerPort (TCP) is published on for IPv6.
func (c *Container) HostPortIPv6(containerPort int) (int, bool) {
	return c.hostPort(containerPort, func(b network.PortBinding) bool {
		return b.HostIP.Is6() && !b.HostIP.Is4In6()
	})
}

func (c *Container) hostPort(containerPort int, match func(network.PortBinding) bool) (int, bool) {
	if c == nil {
		return 0, false
	}
	p, err := tcpPort(containerPort)
	if err != nil {
		return 0, false
	}
	for _, binding := range c.ports[p] {
		if binding.HostPort == "" || !match(binding) {
			continue
		}
		port, err := strconv.Atoi(binding.HostPort)
		if err != nil {
			continue
		}
		return port, true
	}
	return 0, false
}

// ReadinessFunc reports whether a container is ready.
type ReadinessFunc func(ctx context.Context, container *Container) error

// Manager manages Docker containers using the native Docker client.
type Manager struct {
	client *client.Client
	logger *slog.Logger
}

// NewManager creates a new manager backed by the Docker client configured from environment.
func NewManager(logger *slog.Logger) (*Manager, error) {
	dockerClient, err := client.New(
		client.FromEnv,
	)
	if err != nil {
		return nil, fmt.Errorf("create Docker client: %w", err)
	}
	return newManagerWithClient(dockerClient, logger), nil
}

func newManagerWithClient(dockerClient *client.Client, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		client: dockerClient,
		logger: logger.With(slog.String("logger", "dockermanage")),
	}
}

// Start starts a container with the provided options.
func (m *Manager) Start(ctx context.Context, options ...Option) (_ *Container, retErr error) {
	cfg := defaultConfig()
	cfg.pullProgress = os.Stderr
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}
	if cfg.image == "" {
		return nil, errors.New("image is required")
	}
	if len(cfg.containerPorts) == 0 {
		return nil, errors.New("at least one container port is required")
	}
	for port := range cfg.hostPorts {
		if _, ok := cfg.exposedPorts()[port]; !ok {
			return nil, fmt.Errorf("host port set for unexposed container port %s", port)
		}
	}
	if err := m.pullImageIfNotExists(ctx, cfg.image, cfg.pullProgress); err != nil {
		return nil, fmt.Errorf("pull image %s: %w", cfg.image, err)
	}

	resp, err := m.client.ContainerCreate(ctx, client.ContainerCreateOptions{
		Name: cfg.name,
		Config: &container.Config{
			Image:        cfg.image,
			Env:          cfg.envVars,
			ExposedPorts: cfg.exposedPorts(),
			Labels:       maps.Clone(cfg.labels),
		},
		HostConfig: &container.HostConfig{
			PortBindings: cfg.portBindings(),
			AutoRemove:   cfg.autoRemove,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create container: %w", err)
	}
	defer func() {
		if retErr != nil {
			cleanupCtx := context.WithoutCancel(ctx)
			_, err := m.client.ContainerRemove(cleanupCtx, resp.ID, client.ContainerRemoveOptions{Force: true})
			if err != nil {
				m.logger.Error(
					"remove container after start failure",
					slog.String("container_id", resp.ID),
					slog.Any("error", err),
				)
			}
		}
	}()

	if _, err := m.client.ContainerStart(ctx, resp.ID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("start container: %w", err)
	}

	inspectResult, err := m.client.ContainerInspect(ctx, resp.ID, client.ContainerInspectOptions{})
	if err != nil {
		return nil, fmt.Errorf("inspect container for ports: %w", err)
	}
	ports, err := boundPorts(inspectResult.Container, cfg.containerPorts)
	if err != nil {
		return nil, fmt.Errorf("resolve host ports: %w", err)
	}

	m.logger.Info(
		"docker container started",
		slog.String("container_id", resp.ID),
		slog.String("image", cfg.image),
		slog.Any("ports", ports),
	)
	return &Container{
		ID:     resp.ID,
		Image:  cfg.image,
		Labels: maps.Clone(cfg.labels),
		ports:  ports,
	}, nil
}

// boundPorts returns the published bindings of the exposed ports. Every exposed port must be
// published on at least one host port.
func boundPorts(containerJSON container.InspectResponse, exposed []network.Port) (network.PortMap, error) {
	if containerJSON.NetworkSettings == nil {
		return nil, errors.New("container network settings are missing")
	}
	ports := make(network.PortMap, len(exposed))
	for _, port := range exposed {
		var bindings []network.PortBinding
		for _, b := range containerJSON.NetworkSettings.Ports[port] {
			if b.HostPort != "" {
				bindings = append(bindings, b)
			}
		}
		if len(bindings) == 0 {
			return nil, fmt.Errorf("no host port found for %s", port)
		}
		ports[port] = bindings
	}
	return ports, nil
}

// Stop stops a running container.
func (m *Manager) Stop(ctx context.Context, containerID string) error {
	if _, err := m.client.ContainerStop(ctx, containerID, client.ContainerStopOptions{}); err != nil {
		return fmt.Errorf("stop container %s: %w", containerID, err)
	}
	m.logger.Info("docker container stopped", slog.String("container_id", containerID))
	return nil
}

// Remove removes a container. If running, it is force removed.
func (m *Manager) Remove(ctx context.Context, containerID string) error {
	if _, err := m.client.ContainerRemove(ctx, containerID, client.ContainerRemoveOptions{Force: true}); err != nil {
		return fmt.Errorf("remove container %s: %w", containerID, err)
	}
	m.logger.Info("docker container removed", slog.String("container_id", containerID))
	return nil
}

// Logs returns everything the container has written to stdout and stderr so far.
func (m *Manager) Logs(ctx context.Context, containerID string) (stdout, stderr string, retErr error) {
	reader, err := m.client.ContainerLogs(ctx, containerID, client.ContainerLogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("container logs %s: %w", containerID, err)
	}
	defer func() {
		retErr = multierr.Append(retErr, reader.Close())
	}()

	var outBuf, errBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&outBuf, &errBuf, reader); err != nil {
		return "", "", fmt.Errorf("demultiplex logs %s: %w", containerID, err)
	}
	return outBuf.String(), errBuf.String(), nil
}

// LogStream names a container output stream.
type LogStream int

const (
	Stdout LogStream = iota + 1
	Stderr
)

// LogMessage is a message expected on a container output stream.
type LogMessage struct {
	Stream LogStream
	Text   string
}

// LogMessagesReady returns a ReadinessFunc that succeeds once every message has been logged.
// Messages on the same stream must appear in the given order.
func LogMessagesReady(m *Manager, messages ...LogMessage) ReadinessFunc {
	return func(ctx context.Context, c *Container) error {
		if c == nil {
			return errors.New("container must not be nil")
		}
		stdout, stderr, err := m.Logs(ctx, c.ID)
		if err != nil {
			return err
		}
		return containsInOrder(stdout, stderr, messages)
	}
}

func containsInOrder(stdout, stderr string, messages []LogMessage) error {
	offsets := make(map[LogStream]int)
	for _, msg := range messages {
		var out string
		switch msg.Stream {
		case Stdout:
			out = stdout
		case Stderr:
			out = stderr
		default:
			return fmt.Errorf("unknown log stream %d for message %q", msg.Stream, msg.Text)
		}
		i := strings.Index(out[offsets[msg.Stream]:], msg.Text)
		if i < 0 {
			return fmt.Errorf("waiting for log message %q", msg.Text)
		}
		offsets[msg.Stream] += i + len(msg.Text)
	}
	return nil
}

// WaitOption configures WaitReady behavior.
type WaitOption func(*waitConfig)

type waitConfig struct {
	timeout time.Duration
	delay   time.Duration
}

// WithTimeout sets the maximum time to wait for readiness. Defaults to 30s.
func WithTimeout(d time.Duration) WaitOption {
	return func(cfg *waitConfig) { cfg.timeout = d }
}

// WithDelay sets the interval between readiness checks. Defaults to 500ms.
func WithDelay(d time.Duration) WaitOption {
	return func(cfg *waitConfig) { cfg.delay = d }
}

// WaitReady waits until a custom readiness checker succeeds.
func (m *Manager) WaitReady(ctx context.Context, container *Container, readiness ReadinessFunc, opts ...WaitOption) error {
	if container == nil {
		return errors.New("container must not be nil")
	}
	if readiness == nil {
		return errors.New("readiness function must not be nil")
	}

	cfg := &waitConfig{
		timeout: defaultReadinessTimeout,
		delay:   defaultReadinessDelay,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	if cfg.timeout <= 0 {
		return fmt.Errorf("timeout must be positive: %v", cfg.timeout)
	}
	if cfg.delay <= 0 {
		return fmt.Errorf("delay must be positive: %v", cfg.delay)
	}

	retryCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	var lastErr error
	backoff := retry.NewConstant(cfg.delay)
	err := retry.Do(retryCtx, backoff, func(ctx context.Context) error {
		if err := readiness(ctx, container); err != nil {
			lastErr = err
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		// The deadline alone does not say why the container never became ready.
		if lastErr != nil && !errors.Is(err, lastErr) {
			err = multierr.Append(lastErr, err)
		}
		return fmt.Errorf("container %s did not become ready within %s: %w", container.ID, cfg.timeout, err)
	}
	m.logger.Info("docker container ready", slog.String("container_id", container.ID))
	return nil
}

// ListManaged returns all container IDs started by this package.
func (m *Manager) ListManaged(ctx context.Context) ([]string, error) {
	result, err := m.client.ContainerList(ctx, client.ContainerListOptions{
		All:     true,
		Filters: client.Filters{}.Add("label", ManagedLabelKey),
	})
	if err != nil {
		return nil, fmt.Errorf("list managed containers: %w", err)
	}
	ids := make([]string, 0, len(result.Items))
	for _, c := range result.Items {
		ids = append(ids, c.ID)
	}
	return ids, nil
}

// StopManaged stops all containers started by this package.
func (m *Manager) StopManaged(ctx context.Context) error {
	return m.eachManaged(ctx, "stop", m.Stop)
}

// RemoveManaged removes all containers started by this package.
func (m *Manager) RemoveManaged(ctx context.Context) error {
	return m.eachManaged(ctx, "remove", m.Remove)
}

func (m *Manager) eachManaged(ctx context.Context, action string, fn func(context.Context, string) error) error {
	ids, err := m.ListManaged(ctx)
	if err != nil {
		return fmt.Errorf("list containers for %s: %w", action, err)
	}
	var errs error
	for _, id := range ids {
		errs = multierr.Append(errs, fn(ctx, id))
	}
	if errs != nil {
		return errs
	}
	m.logger.Info("processed all managed containers", slog.String("action", action), slog.Int("count", len(ids)))
	return nil
}

// Close closes the underlying Docker client.
func (m *Manager) Close() error {
	return m.client.Close()
}

func (m *Manager) pullImageIfNotExists(ctx context.Context, imageName string, progressWriter io.Writer) (retErr error) {
	if _, err := m.client.ImageInspect(ctx, imageName); err == nil {
		return nil
	} else if !errdefs.IsNotFound(err) {
		return fmt.Errorf("inspect image: %w", err)
	}

	reader, err := m.client.ImagePull(ctx, imageName, client.ImagePullOptions{})
	if err != nil {
		return fmt.Errorf("pull image: %w", err)
	}
	defer func() {
		retErr = multierr.Append(retErr, reader.Close())
	}()

	if progressWriter == nil {
		progressWriter = io.Discard
	}
	if _, err := io.Copy(progressWriter, reader); err != nil {
		return fmt.Errorf("stream pull output: %w", err)
	}
	return nil
}
