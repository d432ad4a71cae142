package dockerneo4j

import (
	"context"
	"errors"
	"fmt"
	"io"
	"maps"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/pressly/neo4jtest"
	"github.com/pressly/neo4jtest/pkg/dockermanage"
	"go.uber.org/multierr"
)

// DefaultReadyTimeout is how long Start waits for Neo4j to log that it has started. Pulling the
// image is not included.
const DefaultReadyTimeout = 2 * time.Minute

// Option configures a Neo4j container instance.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(cfg *config) error {
	return f(cfg)
}

type config struct {
	name         string
	boltHostPort int
	httpHostPort int
	hostIPs      []string
	readyTimeout time.Duration
	labels       map[string]string
	pullProgress io.Writer
	autoRemove   bool
}

func defaultConfig() *config {
	return &config{
		readyTimeout: DefaultReadyTimeout,
		labels: map[string]string{
			dockermanage.ManagedLabelKey: "neo4j",
		},
	}
}

// WithName sets the container name.
func WithName(name string) Option {
	return optionFunc(func(cfg *config) error {
		name = strings.TrimSpace(name)
		if name == "" {
			return errors.New("container name must not be empty")
		}
		cfg.name = name
		return nil
	})
}

// WithBoltHostPort pins the host port of the Bolt connector. If unset, Docker auto-assigns one.
func WithBoltHostPort(port int) Option {
	return optionFunc(func(cfg *config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("bolt host port must be in range 1-65535: %d", port)
		}
		cfg.boltHostPort = port
		return nil
	})
}

// WithHTTPHostPort pins the host port of the HTTP connector. If unset, Docker auto-assigns one.
func WithHTTPHostPort(port int) Option {
	return optionFunc(func(cfg *config) error {
		if port <= 0 || port > 65535 {
			return fmt.Errorf("http host port must be in range 1-65535: %d", port)
		}
		cfg.httpHostPort = port
		return nil
	})
}

// WithHostIP adds a host IP to publish ports on. May be repeated. If unset, ports are published
// on all interfaces.
func WithHostIP(hostIP string) Option {
	return optionFunc(func(cfg *config) error {
		hostIP = strings.TrimSpace(hostIP)
		if hostIP == "" {
			return errors.New("host IP must not be empty")
		}
		cfg.hostIPs = append(cfg.hostIPs, hostIP)
		return nil
	})
}

// WithReadyTimeout sets how long to wait for the readiness messages. Defaults to 2m.
func WithReadyTimeout(d time.Duration) Option {
	return optionFunc(func(cfg *config) error {
		if d <= 0 {
			return fmt.Errorf("ready timeout must be positive: %v", d)
		}
		cfg.readyTimeout = d
		return nil
	})
}

// WithPullProgress sets where image pull output is streamed. Defaults to os.Stderr.
func WithPullProgress(w io.Writer) Option {
	return optionFunc(func(cfg *config) error {
		if w == nil {
			return errors.New("pull progress writer must not be nil")
		}
		cfg.pullProgress = w
		return nil
	})
}

// WithAutoRemove makes Docker remove the container once it stops.
func WithAutoRemove() Option {
	return optionFunc(func(cfg *config) error {
		cfg.autoRemove = true
		return nil
	})
}

// WithLabel appends a container label.
func WithLabel(key, value string) Option {
	return optionFunc(func(cfg *config) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("label key must not be empty")
		}
		cfg.labels[key] = value
		return nil
	})
}

// WithLabels merges labels into container labels.
func WithLabels(labels map[string]string) Option {
	return optionFunc(func(cfg *config) error {
		for key, value := range maps.Clone(labels) {
			key = strings.TrimSpace(key)
			if key == "" {
				return errors.New("label key must not be empty")
			}
			cfg.labels[key] = value
		}
		return nil
	})
}

// Instance represents a running Neo4j container.
type Instance struct {
	Container *dockermanage.Container
	Image     neo4jtest.Image
}

// User returns the Neo4j user.
func (i *Instance) User() string { return i.Image.User() }

// Password returns the Neo4j password.
func (i *Instance) Password() string { return i.Image.Password() }

// BoltURI returns the Bolt URI on the IPv4 loopback address.
func (i *Instance) BoltURI() string { return i.BoltURIIPv4() }

// BoltURIIPv4 returns the Bolt URI on the IPv4 loopback address.
func (i *Instance) BoltURIIPv4() string { return neo4jtest.BoltURIIPv4(i.Container) }

// BoltURIIPv6 returns the Bolt URI on the IPv6 loopback address.
func (i *Instance) BoltURIIPv6() string { return neo4jtest.BoltURIIPv6(i.Container) }

// HTTPURIIPv4 returns the HTTP URI on the IPv4 loopback address.
func (i *Instance) HTTPURIIPv4() string { return neo4jtest.HTTPURIIPv4(i.Container) }

// HTTPURIIPv6 returns the HTTP URI on the IPv6 loopback address.
func (i *Instance) HTTPURIIPv6() string { return neo4jtest.HTTPURIIPv6(i.Container) }

// Start starts a Neo4j container described by image and waits until it logs that Bolt is enabled
// and the server has started.
func Start(ctx context.Context, manager *dockermanage.Manager, image neo4jtest.Image, options ...Option) (_ *Instance, retErr error) {
	if manager == nil {
		return nil, errors.New("manager must not be nil")
	}
	cfg := defaultConfig()
	for _, opt := range options {
		if opt == nil {
			continue
		}
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	container, err := manager.Start(ctx, startOptions(cfg, image)...)
	if err != nil {
		return nil, err
	}
	defer func() {
		if retErr != nil {
			retErr = multierr.Append(retErr, manager.Remove(context.WithoutCancel(ctx), container.ID))
		}
	}()

	if err := manager.WaitReady(
		ctx,
		container,
		dockermanage.LogMessagesReady(manager, logMessages(image.ReadyConditions())...),
		dockermanage.WithTimeout(cfg.readyTimeout),
	); err != nil {
		return nil, fmt.Errorf("wait for neo4j readiness: %w", err)
	}
	// The log line is printed just before the connector accepts connections.
	if err := manager.WaitReady(ctx, container, BoltReady); err != nil {
		return nil, fmt.Errorf("wait for bolt port: %w", err)
	}
	return &Instance{
		Container: container,
		Image:     image,
	}, nil
}

func startOptions(cfg *config, image neo4jtest.Image) []dockermanage.Option {
	opts := []dockermanage.Option{
		dockermanage.WithImage(image.Reference()),
		dockermanage.WithEnvVars(image.EnvList()),
		dockermanage.WithLabels(cfg.labels),
	}
	for _, port := range image.ExposedPorts() {
		opts = append(opts, dockermanage.WithContainerPortTCP(port))
	}
	for _, ip := range cfg.hostIPs {
		opts = append(opts, dockermanage.WithHostIP(ip))
	}
	if cfg.name != "" {
		opts = append(opts, dockermanage.WithName(cfg.name))
	}
	if cfg.boltHostPort > 0 {
		opts = append(opts, dockermanage.WithHostPort(neo4jtest.BoltPort, cfg.boltHostPort))
	}
	if cfg.httpHostPort > 0 {
		opts = append(opts, dockermanage.WithHostPort(neo4jtest.HTTPPort, cfg.httpHostPort))
	}
	if cfg.pullProgress != nil {
		opts = append(opts, dockermanage.WithPullProgress(cfg.pullProgress))
	}
	if cfg.autoRemove {
		opts = append(opts, dockermanage.WithAutoRemove(true))
	}
	return opts
}

func logMessages(conditions []neo4jtest.WaitFor) []dockermanage.LogMessage {
	msgs := make([]dockermanage.LogMessage, 0, len(conditions))
	for _, c := range conditions {
		stream := dockermanage.Stdout
		if c.Stream == neo4jtest.StreamStderr {
			stream = dockermanage.Stderr
		}
		msgs = append(msgs, dockermanage.LogMessage{Stream: stream, Text: c.Message})
	}
	return msgs
}

// BoltReady checks whether the Bolt port is accepting TCP connections. IPv4 is preferred when
// the port is published on both families. If neither family is mapped the returned
// *neo4jtest.PortNotMappedError reports IPv4, the preferred family.
func BoltReady(ctx context.Context, c *dockermanage.Container) error {
	if c == nil {
		return errors.New("container must not be nil")
	}
	host := "127.0.0.1"
	port, ok := c.HostPortIPv4(neo4jtest.BoltPort)
	if !ok {
		host = "::1"
		if port, ok = c.HostPortIPv6(neo4jtest.BoltPort); !ok {
			return &neo4jtest.PortNotMappedError{Port: neo4jtest.BoltPort, Family: neo4jtest.IPv4}
		}
	}
	dialer := net.Dialer{Timeout: 500 * time.Millisecond}
	conn, err := dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return err
	}
	return conn.Close()
}
