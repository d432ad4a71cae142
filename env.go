package neo4jtest

import (
	"strconv"
	"strings"
)

// Environment variables set inside the container.
const (
	EnvAuth                  = "NEO4J_AUTH"
	EnvLabsPlugins           = "NEO4JLABS_PLUGINS"
	EnvMinimumPasswordLength = "NEO4J_dbms_security_auth__minimum__password__length"
)

// Neo4j refuses passwords shorter than this unless the minimum is lowered.
const minimumPasswordLength = 8

// derivation is a partial environment computed from one aspect of the configuration.
type derivation map[string]string

func authEnv(user, pass string) derivation {
	return derivation{EnvAuth: user + "/" + pass}
}

// pluginsEnv formats plugins as a JSON-style array. plugins must already be normalized.
func pluginsEnv(plugins []Plugin) derivation {
	if len(plugins) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteByte('[')
	for i, p := range plugins {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteByte('"')
		sb.WriteString(p.String())
		sb.WriteByte('"')
	}
	sb.WriteByte(']')
	return derivation{EnvLabsPlugins: sb.String()}
}

func passwordLengthEnv(pass string) derivation {
	if len(pass) >= minimumPasswordLength {
		return nil
	}
	return derivation{EnvMinimumPasswordLength: strconv.Itoa(len(pass))}
}
