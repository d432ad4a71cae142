package neo4jtest

import (
	"maps"
	"slices"
)

const (
	// ImageName is the Docker Hub repository of the official Neo4j image.
	ImageName = "neo4j"

	// BoltPort is the container port of the Bolt protocol.
	BoltPort = 7687
	// HTTPPort is the container port of the HTTP API and browser.
	HTTPPort = 7474
)

// Stream names a container output stream.
type Stream int

const (
	StreamStdout Stream = iota + 1
	StreamStderr
)

func (s Stream) String() string {
	switch s {
	case StreamStdout:
		return "stdout"
	case StreamStderr:
		return "stderr"
	default:
		return "unknown"
	}
}

// WaitFor is a readiness condition: Message must appear on Stream before the container is
// considered ready.
type WaitFor struct {
	Stream  Stream
	Message string
}

// MessageOnStdout waits for msg on the container's standard output.
func MessageOnStdout(msg string) WaitFor {
	return WaitFor{Stream: StreamStdout, Message: msg}
}

// MessageOnStderr waits for msg on the container's standard error.
func MessageOnStderr(msg string) WaitFor {
	return WaitFor{Stream: StreamStderr, Message: msg}
}

// Image describes a configured Neo4j container. It is created by Builder.Build and cannot be
// modified. Accessors that return maps or slices return copies.
type Image struct {
	version string
	user    string
	pass    string
	plugins []Plugin
	env     map[string]string
}

// Name returns the image repository name.
func (i Image) Name() string { return ImageName }

// Tag returns the image tag, which is the configured version.
func (i Image) Tag() string { return i.version }

// Version returns the configured Neo4j version.
func (i Image) Version() string { return i.version }

// User returns the Neo4j user.
func (i Image) User() string { return i.user }

// Password returns the Neo4j password.
func (i Image) Password() string { return i.pass }

// Reference returns the image reference in name:tag form.
func (i Image) Reference() string {
	return i.Name() + ":" + i.Tag()
}

// Plugins returns the deduplicated plugins in canonical order.
func (i Image) Plugins() []Plugin {
	return slices.Clone(i.plugins)
}

// Env returns the environment variables to set in the container.
func (i Image) Env() map[string]string {
	return maps.Clone(i.env)
}

// EnvList returns Env as KEY=VALUE pairs sorted by key.
func (i Image) EnvList() []string {
	keys := slices.Sorted(maps.Keys(i.env))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+i.env[k])
	}
	return out
}

// ReadyConditions returns the log messages to wait for, in the order they are printed.
func (i Image) ReadyConditions() []WaitFor {
	return []WaitFor{
		MessageOnStdout("Bolt enabled on"),
		MessageOnStdout("Started."),
	}
}

// ExposedPorts returns the container ports the image listens on.
func (i Image) ExposedPorts() []int {
	return []int{BoltPort, HTTPPort}
}
