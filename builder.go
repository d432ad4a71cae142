package neo4jtest

import (
	"fmt"
	"os"
	"slices"

	"github.com/joho/godotenv"
)

const (
	// EnvUser overrides the default user.
	EnvUser = "NEO4J_TEST_USER"
	// EnvPass overrides the default password.
	EnvPass = "NEO4J_TEST_PASS"
	// EnvVersion overrides the default image tag.
	EnvVersion = "NEO4J_VERSION_TAG"

	DefaultUser    = "neo4j"
	DefaultPass    = "neo"
	DefaultVersion = "5"
)

// LookupFunc reports the value of an override variable and whether it is set. os.LookupEnv
// satisfies it.
type LookupFunc func(key string) (string, bool)

// Builder accumulates the configuration of a Neo4j image. The zero value is not useful, use one
// of the From* constructors.
//
// Builder has value semantics: every With* method returns a new Builder and never modifies the
// receiver.
type Builder struct {
	version string
	user    string
	pass    string
	plugins []Plugin
}

// FromEnv returns a builder with version, user and password taken from NEO4J_VERSION_TAG,
// NEO4J_TEST_USER and NEO4J_TEST_PASS, falling back to "5", "neo4j" and "neo".
func FromEnv() Builder {
	return FromLookup(os.LookupEnv)
}

// FromVersion returns a builder for the given image tag with the default user and password.
func FromVersion(version string) Builder {
	return FromEnv().WithVersion(version)
}

// FromAuthAndVersion returns a builder with all fields set explicitly. The environment is not
// consulted.
func FromAuthAndVersion(version, user, pass string) Builder {
	return Builder{
		version: version,
		user:    user,
		pass:    pass,
	}
}

// FromLookup is like FromEnv but reads overrides from lookup. A nil lookup disables overrides.
func FromLookup(lookup LookupFunc) Builder {
	return Builder{
		version: resolve(lookup, EnvVersion, DefaultVersion),
		user:    resolve(lookup, EnvUser, DefaultUser),
		pass:    resolve(lookup, EnvPass, DefaultPass),
	}
}

// FromEnvFile is like FromEnv but also reads overrides from a dotenv file. Variables already set
// in the process environment take precedence over the file.
func FromEnvFile(path string) (Builder, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		return Builder{}, fmt.Errorf("read env file %s: %w", path, err)
	}
	return FromLookup(chainLookup(os.LookupEnv, mapLookup(vars))), nil
}

// WithVersion returns a copy of b using the given image tag.
func (b Builder) WithVersion(version string) Builder {
	b.plugins = slices.Clone(b.plugins)
	b.version = version
	return b
}

// WithUser returns a copy of b using the given user.
func (b Builder) WithUser(user string) Builder {
	b.plugins = slices.Clone(b.plugins)
	b.user = user
	return b
}

// WithPassword returns a copy of b using the given password.
func (b Builder) WithPassword(pass string) Builder {
	b.plugins = slices.Clone(b.plugins)
	b.pass = pass
	return b
}

// WithPlugins returns a copy of b with plugins added. Duplicates are allowed here and collapse
// in Build.
func (b Builder) WithPlugins(plugins ...Plugin) Builder {
	b.plugins = slices.Concat(b.plugins, plugins)
	return b
}

// Build finalizes the configuration into an Image.
func (b Builder) Build() Image {
	plugins := normalizePlugins(b.plugins)
	env := make(map[string]string)
	for _, derive := range []derivation{
		authEnv(b.user, b.pass),
		pluginsEnv(plugins),
		passwordLengthEnv(b.pass),
	} {
		for k, v := range derive {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}
	return Image{
		version: b.version,
		user:    b.user,
		pass:    b.pass,
		plugins: plugins,
		env:     env,
	}
}

// resolve returns the override for key, or fallback when lookup is nil or the key is unset.
func resolve(lookup LookupFunc, key, fallback string) string {
	if lookup == nil {
		return fallback
	}
	if v, ok := lookup(key); ok {
		return v
	}
	return fallback
}

func mapLookup(m map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := m[key]
		return v, ok
	}
}

// chainLookup consults each lookup in order and returns the first hit.
func chainLookup(lookups ...LookupFunc) LookupFunc {
	return func(key string) (string, bool) {
		for _, l := range lookups {
			if v, ok := l(key); ok {
				return v, true
			}
		}
		return "", false
	}
}
