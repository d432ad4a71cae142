package dockerneo4j_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/pressly/neo4jtest"
	"github.com/pressly/neo4jtest/internal/testdb"
	"github.com/pressly/neo4jtest/pkg/dockermanage"
	"github.com/pressly/neo4jtest/pkg/dockermanage/dockerneo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	testdb.WrapTestMain(m)
}

func newManager(t *testing.T) *dockermanage.Manager {
	t.Helper()
	testdb.SkipIfNoDocker(t)
	m, err := dockermanage.NewManager(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	require.NoError(t, err)
	t.Cleanup(func() {
		assert.NoError(t, m.Close())
	})
	return m
}

func start(t *testing.T, m *dockermanage.Manager, img neo4jtest.Image, opts ...dockerneo4j.Option) *dockerneo4j.Instance {
	t.Helper()
	ctx := t.Context()
	instance, err := dockerneo4j.Start(ctx, m, img, opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		if testdb.NoCleanup() {
			t.Logf("leaving container %s running", instance.Container.ID)
			return
		}
		assert.NoError(t, m.Remove(context.WithoutCancel(ctx), instance.Container.ID))
	})
	return instance
}

func verifyConnectivity(t *testing.T, uri, user, pass string) {
	t.Helper()
	ctx := t.Context()
	driver, err := neo4j.NewDriverWithContext(uri, neo4j.BasicAuth(user, pass, ""))
	require.NoError(t, err)
	defer driver.Close(ctx)
	require.NoError(t, driver.VerifyConnectivity(ctx))
}

func TestStartAndConnect(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	img := neo4jtest.FromEnv().Build()
	instance := start(t, m, img)

	require.True(t, strings.HasPrefix(instance.BoltURI(), "bolt://127.0.0.1:"))
	require.True(t, strings.HasPrefix(instance.HTTPURIIPv4(), "http://127.0.0.1:"))
	verifyConnectivity(t, instance.BoltURI(), instance.User(), instance.Password())
}

func TestStartAndStop(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := t.Context()

	instance, err := dockerneo4j.Start(ctx, m, neo4jtest.FromEnv().Build(), dockerneo4j.WithPullProgress(io.Discard))
	require.NoError(t, err)

	require.NoError(t, m.Stop(ctx, instance.Container.ID))
	require.NoError(t, m.Remove(ctx, instance.Container.ID))
}

func TestStartAutoRemove(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	ctx := t.Context()

	instance, err := dockerneo4j.Start(ctx, m, neo4jtest.FromEnv().Build(), dockerneo4j.WithAutoRemove())
	require.NoError(t, err)
	require.NoError(t, m.Stop(ctx, instance.Container.ID))

	require.Eventually(t, func() bool {
		ids, err := m.ListManaged(ctx)
		return err == nil && !slices.Contains(ids, instance.Container.ID)
	}, 30*time.Second, 250*time.Millisecond)
}

// Not parallel: removes every managed container, so it must finish before the parallel tests
// start theirs.
func TestRemoveManaged(t *testing.T) {
	m := newManager(t)
	if testdb.NoCleanup() {
		t.Skip("skipping: containers are kept")
	}
	ctx := t.Context()

	instance, err := dockerneo4j.Start(ctx, m, neo4jtest.FromEnv().Build())
	require.NoError(t, err)

	require.NoError(t, m.StopManaged(ctx))
	require.NoError(t, m.RemoveManaged(ctx))
	ids, err := m.ListManaged(ctx)
	require.NoError(t, err)
	require.NotContains(t, ids, instance.Container.ID)
}

func TestStartWithPluginsAndLongPassword(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	img := neo4jtest.FromEnv().
		WithPassword("a-long-password").
		WithPlugins(neo4jtest.PluginAPOC).
		Build()
	instance := start(t, m, img)

	require.NotContains(t, img.Env(), neo4jtest.EnvMinimumPasswordLength)
	verifyConnectivity(t, instance.BoltURIIPv4(), instance.User(), "a-long-password")
}

func TestManagedLabel(t *testing.T) {
	t.Parallel()

	m := newManager(t)
	instance := start(t, m, neo4jtest.FromEnv().Build(), dockerneo4j.WithLabel("test", t.Name()))

	label, ok := instance.Container.Labels[dockermanage.ManagedLabelKey]
	require.True(t, ok, "expected managed label to be set")
	require.Equal(t, "neo4j", label)

	ids, err := m.ListManaged(t.Context())
	require.NoError(t, err)
	require.Contains(t, ids, instance.Container.ID)
}
