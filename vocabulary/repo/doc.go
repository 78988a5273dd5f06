// Package repo provides the repository schema vocabulary: the class and
// property IRIs the gatekeeper rules depend on, plus the dotted predicates
// used when collection aggregates are published to the semstreams graph.
//
// The IRI constants are defaults. Deployments override them through the
// schema section of the gate configuration.
//
// Import this package to auto-register predicates:
//
//	import _ "github.com/c360studio/semgate/vocabulary/repo"
package repo
