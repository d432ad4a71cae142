package dockermanage

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"

	"github.com/moby/moby/api/types/network"
)

const (
	// ManagedLabelKey marks containers created by this package. The value indicates the container
	// type (e.g., "neo4j"). Presence of the key means the container is managed.
	ManagedLabelKey = "pressly.neo4jtest"
)

// Option configures container start behavior.
type Option interface {
	apply(*config) error
}

type optionFunc func(*config) error

func (f optionFunc) apply(cfg *config) error {
	return f(cfg)
}

type config struct {
	name           string
	image          string
	containerPorts []network.Port
	hostIPs        []netip.Addr
	hostPorts      map[network.Port]int
	envVars        []string
	autoRemove     bool
	pullProgress   io.Writer
	labels         map[string]string
}

func defaultConfig() *config {
	return &config{
		hostPorts: make(map[network.Port]int),
		envVars:   []string{},
		labels: map[string]string{
			ManagedLabelKey: "",
		},
	}
}

// portBindings publishes every container port on each host IP, or on all interfaces when no host
// IP was configured.
func (cfg *config) portBindings() network.PortMap {
	hostIPs := cfg.hostIPs
	if len(hostIPs) == 0 {
		hostIPs = []netip.Addr{{}}
	}
	bindings := make(network.PortMap, len(cfg.containerPorts))
	for _, port := range cfg.containerPorts {
		for _, ip := range hostIPs {
			b := network.PortBinding{HostIP: ip}
			if hostPort := cfg.hostPorts[port]; hostPort > 0 {
				b.HostPort = strconv.Itoa(hostPort)
			}
			bindings[port] = append(bindings[port], b)
		}
	}
	return bindings
}

func (cfg *config) exposedPorts() network.PortSet {
	set := make(network.PortSet, len(cfg.containerPorts))
	for _, port := range cfg.containerPorts {
		set[port] = struct{}{}
	}
	return set
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

// WithImage sets the container image (for example: neo4j:5).
func WithImage(image string) Option {
	return optionFunc(func(cfg *config) error {
		image = strings.TrimSpace(image)
		if image == "" {
			return errors.New("image must not be empty")
		}
		cfg.image = image
		return nil
	})
}

// WithContainerPort adds a container port to expose, for example: "7687/tcp". May be repeated.
func WithContainerPort(port string) Option {
	return optionFunc(func(cfg *config) error {
		p, err := network.ParsePort(port)
		if err != nil {
			return fmt.Errorf("invalid container port: %w", err)
		}
		cfg.addContainerPort(p)
		return nil
	})
}

// WithContainerPortTCP is a convenience helper for TCP ports. May be repeated.
func WithContainerPortTCP(port int) Option {
	return optionFunc(func(cfg *config) error {
		p, err := tcpPort(port)
		if err != nil {
			return fmt.Errorf("container port: %w", err)
		}
		cfg.addContainerPort(p)
		return nil
	})
}

func (cfg *config) addContainerPort(p network.Port) {
	if !slices.Contains(cfg.containerPorts, p) {
		cfg.containerPorts = append(cfg.containerPorts, p)
	}
}

func tcpPort(port int) (p network.Port, err error) {
	if port <= 0 || port > 65535 {
		return p, fmt.Errorf("must be in range 1-65535: %d", port)
	}
	p, ok := network.PortFrom(uint16(port), network.TCP)
	if !ok {
		return p, fmt.Errorf("invalid port: %d", port)
	}
	return p, nil
}

// WithHostIP adds a host IP to bind container ports to. May be repeated, for example once with
// 127.0.0.1 and once with ::1. Leave unset to bind on all interfaces.
func WithHostIP(hostIP string) Option {
	return optionFunc(func(cfg *config) error {
		hostIP = strings.TrimSpace(hostIP)
		if hostIP == "" {
			return errors.New("host IP must not be empty")
		}
		addr, err := netip.ParseAddr(hostIP)
		if err != nil {
			return fmt.Errorf("invalid host IP: %w", err)
		}
		if !slices.Contains(cfg.hostIPs, addr) {
			cfg.hostIPs = append(cfg.hostIPs, addr)
		}
		return nil
	})
}

// WithHostPort pins the host port of a TCP container port. Leave unset to auto-assign.
func WithHostPort(containerPort, hostPort int) Option {
	return optionFunc(func(cfg *config) error {
		p, err := tcpPort(containerPort)
		if err != nil {
			return fmt.Errorf("container port: %w", err)
		}
		if hostPort <= 0 || hostPort > 65535 {
			return fmt.Errorf("host port must be in range 1-65535: %d", hostPort)
		}
		cfg.hostPorts[p] = hostPort
		return nil
	})
}

// WithEnv appends a single environment variable.
func WithEnv(key, value string) Option {
	return optionFunc(func(cfg *config) error {
		key = strings.TrimSpace(key)
		if key == "" {
			return errors.New("env key must not be empty")
		}
		if strings.Contains(key, "=") {
			return fmt.Errorf("env key must not contain '=': %s", key)
		}
		cfg.envVars = append(cfg.envVars, key+"="+value)
		return nil
	})
}

// WithEnvVars appends environment variables in KEY=VALUE format.
func WithEnvVars(envVars []string) Option {
	return optionFunc(func(cfg *config) error {
		for _, kv := range envVars {
			if key, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(key) == "" {
				return fmt.Errorf("env var must be in KEY=VALUE format: %q", kv)
			}
		}
		cfg.envVars = append(cfg.envVars, slices.Clone(envVars)...)
		return nil
	})
}

// WithAutoRemove configures Docker AutoRemove behavior.
func WithAutoRemove(autoRemove bool) Option {
	return optionFunc(func(cfg *config) error {
		cfg.autoRemove = autoRemove
		return nil
	})
}

// WithPullProgress sets where image pull output is streamed.
func WithPullProgress(w io.Writer) Option {
	return optionFunc(func(cfg *config) error {
		cfg.pullProgress = w
		return nil
	})
}

// WithLabel sets a single container label.
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
