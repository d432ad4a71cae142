// Package dockermanage provides lightweight Docker container lifecycle helpers for integration
// testing.
//
// A [Manager] wraps the native Docker client and exposes methods to start, stop, remove, and list
// containers. Containers are configured through functional [Option] values such as [WithImage],
// [WithContainerPortTCP], and [WithEnv]. Every exposed port is published on the host, and a
// started [Container] reports the host ports per address family through
// [Container.HostPortIPv4] and [Container.HostPortIPv6].
//
// After starting a container, use [Manager.WaitReady] with a [ReadinessFunc] to block until the
// service inside the container is accepting connections. [LogMessagesReady] waits for messages
// in the container output.
//
// Every container created through this package is tagged with the [ManagedLabelKey] label, which
// allows bulk operations like [Manager.StopManaged] and [Manager.RemoveManaged] to clean up all
// managed containers.
//
// Database-specific sub-packages (e.g., dockerneo4j) provide opinionated defaults for common
// databases.
package dockermanage
