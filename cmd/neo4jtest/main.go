package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"os/signal"
	"runtime/debug"
	"slices"
	"syscall"
	"time"

	"github.com/mfridman/xflag"
	"github.com/pressly/neo4jtest"
	"github.com/pressly/neo4jtest/pkg/dockermanage"
	"github.com/pressly/neo4jtest/pkg/dockermanage/dockerneo4j"
	"go.uber.org/multierr"
)

const defaultEnvFile = ".env"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "neo4jtest: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	envFile string
	version string
	user    string
	pass    string
	plugins []neo4jtest.Plugin
	json    bool
	timeout time.Duration
	// set holds the names of flags given on the command line.
	set map[string]bool
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var opt options
	flags := flag.NewFlagSet("neo4jtest", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { usage(flags) }
	flags.StringVar(&opt.envFile, "env-file", defaultEnvFile, `load overrides from a dotenv file, "none" to disable`)
	flags.StringVar(&opt.version, "version", "", "Neo4j image tag (overrides "+neo4jtest.EnvVersion+")")
	flags.StringVar(&opt.user, "user", "", "Neo4j user (overrides "+neo4jtest.EnvUser+")")
	flags.StringVar(&opt.pass, "pass", "", "Neo4j password (overrides "+neo4jtest.EnvPass+")")
	flags.Func("plugin", "Neo4j Labs plugin to install, may be repeated", func(s string) error {
		p := neo4jtest.ParsePlugin(s)
		if p.String() == "" {
			return errors.New("plugin name must not be empty")
		}
		opt.plugins = append(opt.plugins, p)
		return nil
	})
	flags.BoolVar(&opt.json, "json", false, "print env as JSON")
	flags.DurationVar(&opt.timeout, "timeout", dockerneo4j.DefaultReadyTimeout, "how long run waits for Neo4j to start")
	if err := xflag.ParseToEnd(flags, args); err != nil {
		return err
	}
	opt.set = make(map[string]bool)
	flags.Visit(func(f *flag.Flag) { opt.set[f.Name] = true })
	if flags.NArg() != 1 {
		flags.Usage()
		return errors.New("expected exactly one command")
	}

	switch command := flags.Arg(0); command {
	case "version":
		fmt.Fprintln(stdout, buildVersion())
		return nil
	case "plugins":
		for _, p := range neo4jtest.KnownPlugins() {
			fmt.Fprintln(stdout, p)
		}
		return nil
	case "env":
		builder, err := newBuilder(opt)
		if err != nil {
			return err
		}
		return printEnv(stdout, builder.Build(), opt.json)
	case "run":
		builder, err := newBuilder(opt)
		if err != nil {
			return err
		}
		return runContainer(ctx, stdout, stderr, builder.Build(), opt.timeout)
	case "cleanup":
		return cleanup(ctx, stderr)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func newBuilder(opt options) (neo4jtest.Builder, error) {
	builder := neo4jtest.FromEnv()
	switch opt.envFile {
	case "none":
	case defaultEnvFile:
		// The default file is optional.
		if _, err := os.Stat(opt.envFile); err == nil {
			if builder, err = neo4jtest.FromEnvFile(opt.envFile); err != nil {
				return builder, err
			}
		}
	default:
		var err error
		if builder, err = neo4jtest.FromEnvFile(opt.envFile); err != nil {
			return builder, err
		}
	}
	// An explicitly empty value still counts, as it does for the override variables.
	if opt.set["version"] {
		builder = builder.WithVersion(opt.version)
	}
	if opt.set["user"] {
		builder = builder.WithUser(opt.user)
	}
	if opt.set["pass"] {
		builder = builder.WithPassword(opt.pass)
	}
	return builder.WithPlugins(opt.plugins...), nil
}

func printEnv(w io.Writer, img neo4jtest.Image, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(img.Env())
	}
	env := img.Env()
	for _, key := range slices.Sorted(maps.Keys(env)) {
		fmt.Fprintf(w, "%s=%q\n", key, env[key])
	}
	return nil
}

func runContainer(ctx context.Context, stdout, stderr io.Writer, img neo4jtest.Image, timeout time.Duration) (retErr error) {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	manager, err := dockermanage.NewManager(logger)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, manager.Close())
	}()

	instance, err := dockerneo4j.Start(ctx, manager, img,
		dockerneo4j.WithReadyTimeout(timeout),
		dockerneo4j.WithPullProgress(stderr),
	)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, manager.Remove(context.WithoutCancel(ctx), instance.Container.ID))
	}()

	fmt.Fprintf(stdout, "image:  %s\n", img.Reference())
	fmt.Fprintf(stdout, "auth:   %s/%s\n", img.User(), img.Password())
	fmt.Fprintf(stdout, "bolt:   %s\n", instance.BoltURIIPv4())
	fmt.Fprintf(stdout, "http:   %s\n", instance.HTTPURIIPv4())
	if _, ok := instance.Container.HostPortIPv6(neo4jtest.BoltPort); ok {
		fmt.Fprintf(stdout, "bolt6:  %s\n", instance.BoltURIIPv6())
	}
	if _, ok := instance.Container.HostPortIPv6(neo4jtest.HTTPPort); ok {
		fmt.Fprintf(stdout, "http6:  %s\n", instance.HTTPURIIPv6())
	}
	fmt.Fprintln(stderr, "press CTRL+C to stop and remove the container")
	<-ctx.Done()
	return nil
}

// cleanup stops and removes every container left behind, for example by NEO4JTEST_NOCLEANUP.
func cleanup(ctx context.Context, stderr io.Writer) (retErr error) {
	logger := slog.New(slog.NewTextHandler(stderr, nil))
	manager, err := dockermanage.NewManager(logger)
	if err != nil {
		return err
	}
	defer func() {
		retErr = multierr.Append(retErr, manager.Close())
	}()
	if err := manager.StopManaged(ctx); err != nil {
		return err
	}
	return manager.RemoveManaged(ctx)
}

func buildVersion() string {
	info, ok := debug.ReadBuildInfo()
	if !ok || info.Main.Version == "" {
		return "(devel)"
	}
	return info.Main.Version
}

func usage(flags *flag.FlagSet) {
	fmt.Fprint(flags.Output(), usagePrefix)
	flags.PrintDefaults()
	fmt.Fprint(flags.Output(), usageCommands)
}

var (
	usagePrefix = `Usage: neo4jtest [OPTIONS] COMMAND

Examples:
    neo4jtest env
    neo4jtest -plugin apoc -plugin graph-data-science env
    neo4jtest -version 5.26 -pass longpassword run
    NEO4J_TEST_PASS=secret neo4jtest env -json

Options:
`

	usageCommands = `
Commands:
    cleanup    Stop and remove all containers started by neo4jtest
    env        Print the environment passed to the Neo4j container
    plugins    List the known Neo4j Labs plugins
    run        Start a Neo4j container and block until interrupted
    version    Print the neo4jtest version
`
)
