// Package neo4jtest configures Neo4j containers for integration tests.
//
// A [Builder] collects the image version, credentials and Neo4j Labs plugins. Its Build method
// returns an immutable [Image] carrying the container environment and readiness conditions.
// Starting the container is left to an orchestration layer, such as the dockermanage package and
// its dockerneo4j preset:
//
//	img := neo4jtest.FromEnv().WithPlugins(neo4jtest.PluginAPOC).Build()
//	instance, err := dockerneo4j.Start(ctx, manager, img)
//	...
//	uri := neo4jtest.BoltURIIPv4(instance.Container)
//
// Defaults can be overridden with the NEO4J_VERSION_TAG, NEO4J_TEST_USER and NEO4J_TEST_PASS
// environment variables. Explicit arguments take precedence over the environment.
package neo4jtest
