package dockermanage

import (
	"context"
	"errors"
	"net/netip"
	"testing"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"
	"github.com/stretchr/testify/require"
)

func mustTCPPort(t *testing.T, port int) network.Port {
	t.Helper()
	p, err := tcpPort(port)
	require.NoError(t, err)
	return p
}

func TestContainerHostPorts(t *testing.T) {
	t.Parallel()

	bolt := mustTCPPort(t, 7687)
	c := &Container{
		ID: "abc",
		ports: network.PortMap{
			bolt: {
				{HostIP: netip.MustParseAddr("0.0.0.0"), HostPort: "32768"},
				{HostIP: netip.MustParseAddr("::"), HostPort: "32769"},
			},
		},
	}
	port, ok := c.HostPortIPv4(7687)
	require.True(t, ok)
	require.Equal(t, 32768, port)
	port, ok = c.HostPortIPv6(7687)
	require.True(t, ok)
	require.Equal(t, 32769, port)

	_, ok = c.HostPortIPv4(7474)
	require.False(t, ok)
	_, ok = c.HostPortIPv4(0)
	require.False(t, ok)

	var nilContainer *Container
	_, ok = nilContainer.HostPortIPv6(7687)
	require.False(t, ok)
}

func TestContainerHostPortsIPv4Only(t *testing.T) {
	t.Parallel()

	c := &Container{
		ports: network.PortMap{
			mustTCPPort(t, 7474): {
				{HostIP: netip.MustParseAddr("127.0.0.1"), HostPort: "40000"},
			},
		},
	}
	port, ok := c.HostPortIPv4(7474)
	require.True(t, ok)
	require.Equal(t, 40000, port)
	_, ok = c.HostPortIPv6(7474)
	require.False(t, ok)
}

func TestBoundPortsMissingNetworkSettings(t *testing.T) {
	t.Parallel()

	_, err := boundPorts(container.InspectResponse{}, []network.Port{mustTCPPort(t, 7687)})
	require.Error(t, err)
}

func TestContainsInOrder(t *testing.T) {
	t.Parallel()

	stdout := "Starting...\nBolt enabled on 0.0.0.0:7687.\nRemote interface available\nStarted.\n"
	msgs := []LogMessage{
		{Stream: Stdout, Text: "Bolt enabled on"},
		{Stream: Stdout, Text: "Started."},
	}
	require.NoError(t, containsInOrder(stdout, "", msgs))

	// Only the first message so far.
	require.Error(t, containsInOrder("Bolt enabled on 0.0.0.0:7687.\n", "", msgs))

	// Out of order on the same stream.
	require.Error(t, containsInOrder("Started.\nBolt enabled on\n", "", msgs))

	// Streams are tracked independently.
	require.NoError(t, containsInOrder("Started.\n", "warn\n", []LogMessage{
		{Stream: Stderr, Text: "warn"},
		{Stream: Stdout, Text: "Started."},
	}))
	require.Error(t, containsInOrder("Started.\n", "", []LogMessage{{Stream: Stderr, Text: "Started."}}))
	require.Error(t, containsInOrder("x", "", []LogMessage{{Text: "x"}}))
}

func TestWaitReady(t *testing.T) {
	t.Parallel()

	m := newManagerWithClient(nil, nil)
	c := &Container{ID: "abc"}
	errNotReady := errors.New("not ready")

	t.Run("ready after retries", func(t *testing.T) {
		t.Parallel()
		var calls int
		err := m.WaitReady(t.Context(), c, func(context.Context, *Container) error {
			calls++
			if calls < 3 {
				return errNotReady
			}
			return nil
		}, WithDelay(time.Millisecond), WithTimeout(5*time.Second))
		require.NoError(t, err)
		require.Equal(t, 3, calls)
	})
	t.Run("timeout keeps last error", func(t *testing.T) {
		t.Parallel()
		err := m.WaitReady(t.Context(), c, func(context.Context, *Container) error {
			return errNotReady
		}, WithDelay(5*time.Millisecond), WithTimeout(50*time.Millisecond))
		require.Error(t, err)
		require.ErrorIs(t, err, errNotReady)
		require.ErrorIs(t, err, context.DeadlineExceeded)
		require.Contains(t, err.Error(), "abc")
	})
	t.Run("delay between checks", func(t *testing.T) {
		t.Parallel()
		var calls int
		start := time.Now()
		err := m.WaitReady(t.Context(), c, func(context.Context, *Container) error {
			calls++
			if calls < 3 {
				return errNotReady
			}
			return nil
		}, WithDelay(40*time.Millisecond), WithTimeout(5*time.Second))
		require.NoError(t, err)
		require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	})
	t.Run("invalid arguments", func(t *testing.T) {
		t.Parallel()
		ready := func(context.Context, *Container) error { return nil }
		require.Error(t, m.WaitReady(t.Context(), nil, ready))
		require.Error(t, m.WaitReady(t.Context(), c, nil))
		require.Error(t, m.WaitReady(t.Context(), c, ready, WithTimeout(0)))
		require.Error(t, m.WaitReady(t.Context(), c, ready, WithDelay(-time.Second)))
	})
}
