package neo4jtest_test

import (
	"testing"

	"github.com/pressly/neo4jtest"
	"github.com/stretchr/testify/require"
)

func TestPluginNames(t *testing.T) {
	t.Parallel()

	tt := []struct {
		plugin neo4jtest.Plugin
		name   string
	}{
		{neo4jtest.PluginAPOC, "apoc"},
		{neo4jtest.PluginAPOCCore, "apoc-core"},
		{neo4jtest.PluginBloom, "bloom"},
		{neo4jtest.PluginStreams, "streams"},
		{neo4jtest.PluginGraphDataScience, "graph-data-science"},
		{neo4jtest.PluginNeoSemantics, "n10s"},
		{neo4jtest.CustomPlugin("Some_Plugin"), "Some_Plugin"},
	}
	for _, test := range tt {
		require.Equal(t, test.name, test.plugin.String())
	}
	require.Len(t, neo4jtest.KnownPlugins(), 6)
}

func TestParsePlugin(t *testing.T) {
	t.Parallel()

	require.Equal(t, neo4jtest.PluginGraphDataScience, neo4jtest.ParsePlugin(" Graph-Data-Science "))
	require.True(t, neo4jtest.ParsePlugin("APOC").Known())
	custom := neo4jtest.ParsePlugin("My-Plugin")
	require.False(t, custom.Known())
	require.Equal(t, "My-Plugin", custom.String())
}
