package neo4jtest

import (
	"fmt"
	"net"
	"strconv"
)

// IPFamily selects which host address a container port is looked up on.
type IPFamily int

const (
	IPv4 IPFamily = iota + 1
	IPv6
)

func (f IPFamily) String() string {
	switch f {
	case IPv4:
		return "IPv4"
	case IPv6:
		return "IPv6"
	default:
		return "unknown"
	}
}

// PortMapper resolves the host port a container port is published on. A running container from
// the orchestration layer implements it.
type PortMapper interface {
	HostPortIPv4(containerPort int) (int, bool)
	HostPortIPv6(containerPort int) (int, bool)
}

// PortNotMappedError is the panic value of the URI helpers when the container does not publish
// an expected port.
type PortNotMappedError struct {
	Port   int
	Family IPFamily
}

func (e *PortNotMappedError) Error() string {
	return fmt.Sprintf("neo4jtest: container port %d is not mapped on %s; the image exposes it by default", e.Port, e.Family)
}

// BoltURIIPv4 returns the Bolt URI on the IPv4 loopback address. It panics with a
// *PortNotMappedError if port 7687 is not published.
func BoltURIIPv4(p PortMapper) string {
	return formatURI("bolt", p, BoltPort, IPv4)
}

// BoltURIIPv6 returns the Bolt URI on the IPv6 loopback address. It panics with a
// *PortNotMappedError if port 7687 is not published.
func BoltURIIPv6(p PortMapper) string {
	return formatURI("bolt", p, BoltPort, IPv6)
}

// HTTPURIIPv4 returns the HTTP URI on the IPv4 loopback address. It panics with a
// *PortNotMappedError if port 7474 is not published.
func HTTPURIIPv4(p PortMapper) string {
	return formatURI("http", p, HTTPPort, IPv4)
}

// HTTPURIIPv6 returns the HTTP URI on the IPv6 loopback address. It panics with a
// *PortNotMappedError if port 7474 is not published.
func HTTPURIIPv6(p PortMapper) string {
	return formatURI("http", p, HTTPPort, IPv6)
}

func formatURI(scheme string, p PortMapper, containerPort int, family IPFamily) string {
	var (
		host     string
		hostPort int
		ok       bool
	)
	switch family {
	case IPv6:
		host = "::1"
		hostPort, ok = p.HostPortIPv6(containerPort)
	default:
		host = "127.0.0.1"
		hostPort, ok = p.HostPortIPv4(containerPort)
	}
	if !ok {
		panic(&PortNotMappedError{Port: containerPort, Family: family})
	}
	return scheme + "://" + net.JoinHostPort(host, strconv.Itoa(hostPort))
}
