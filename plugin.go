package neo4jtest

import (
	"slices"
	"strings"
)

// Plugin identifies a Neo4j Labs plugin installed when the container starts. The value is the
// canonical name the image expects in NEO4JLABS_PLUGINS.
type Plugin string

const (
	PluginAPOC             Plugin = "apoc"
	PluginAPOCCore         Plugin = "apoc-core"
	PluginBloom            Plugin = "bloom"
	PluginStreams          Plugin = "streams"
	PluginGraphDataScience Plugin = "graph-data-science"
	PluginNeoSemantics     Plugin = "n10s"
)

var knownPlugins = []Plugin{
	PluginAPOC,
	PluginAPOCCore,
	PluginBloom,
	PluginStreams,
	PluginGraphDataScience,
	PluginNeoSemantics,
}

// CustomPlugin returns a plugin that is not known to this package. It formats as the literal
// name, so two custom plugins with the same name are the same plugin.
func CustomPlugin(name string) Plugin {
	return Plugin(name)
}

// KnownPlugins returns the plugins this package has names for.
func KnownPlugins() []Plugin {
	return slices.Clone(knownPlugins)
}

// ParsePlugin maps s to a known plugin, ignoring case and surrounding whitespace. Anything else
// is returned as a custom plugin with the trimmed input.
func ParsePlugin(s string) Plugin {
	s = strings.TrimSpace(s)
	lower := strings.ToLower(s)
	for _, p := range knownPlugins {
		if string(p) == lower {
			return p
		}
	}
	return CustomPlugin(s)
}

// String returns the canonical plugin name.
func (p Plugin) String() string {
	return string(p)
}

// Known reports whether p is one of the plugins returned by KnownPlugins.
func (p Plugin) Known() bool {
	return slices.Contains(knownPlugins, p)
}

// normalizePlugins sorts by canonical name and drops duplicates.
func normalizePlugins(plugins []Plugin) []Plugin {
	out := slices.Clone(plugins)
	slices.Sort(out)
	return slices.Compact(out)
}
