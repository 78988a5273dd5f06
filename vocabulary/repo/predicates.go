package repo

import "github.com/c360studio/semstreams/vocabulary"

// Collection aggregate predicates published to the graph.
const (
	// CollectionCumulativeSize is the summed binary size of all descendants.
	CollectionCumulativeSize = "semgate.collection.cumulative_size"

	// CollectionCumulativeCount is the number of non-collection descendants.
	CollectionCumulativeCount = "semgate.collection.cumulative_count"

	// CollectionLicenseAggregate is the "value: count" license summary.
	CollectionLicenseAggregate = "semgate.collection.license_aggregate"

	// CollectionAccessAggregate is the "value: count" access-restriction summary.
	CollectionAccessAggregate = "semgate.collection.access_aggregate"

	// CollectionSingleBinary marks a collection wrapping exactly one binary.
	CollectionSingleBinary = "semgate.collection.single_binary"
)

// Commit predicates describing the transaction that produced an aggregate.
const (
	// CommitTransaction is the host transaction id.
	CommitTransaction = "semgate.commit.transaction"

	// CommitTimestamp is when the aggregates were recomputed (RFC3339).
	CommitTimestamp = "semgate.commit.timestamp"
)

func init() {
	vocabulary.Register(CollectionCumulativeSize,
		vocabulary.WithDescription("Summed binary size of all active descendants"),
		vocabulary.WithDataType("int"),
		vocabulary.WithIRI(PropCumulativeSize))

	vocabulary.Register(CollectionCumulativeCount,
		vocabulary.WithDescription("Number of active non-collection descendants"),
		vocabulary.WithDataType("int"),
		vocabulary.WithIRI(PropCumulativeCount))

	vocabulary.Register(CollectionLicenseAggregate,
		vocabulary.WithDescription("Frequency-ranked license summary of descendants"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(PropLicenseAgg))

	vocabulary.Register(CollectionAccessAggregate,
		vocabulary.WithDescription("Frequency-ranked access-restriction summary of descendants"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(PropAccessRestrictionAgg))

	vocabulary.Register(CollectionSingleBinary,
		vocabulary.WithDescription("Collection whose only descendant is a binary resource"),
		vocabulary.WithDataType("bool"),
		vocabulary.WithIRI(Namespace+"singleBinary"))

	vocabulary.Register(CommitTransaction,
		vocabulary.WithDescription("Host transaction that triggered recomputation"),
		vocabulary.WithDataType("string"),
		vocabulary.WithIRI(Namespace+"commitTransaction"))

	vocabulary.Register(CommitTimestamp,
		vocabulary.WithDescription("Time the aggregates were recomputed (RFC3339)"),
		vocabulary.WithDataType("datetime"),
		vocabulary.WithIRI("http://purl.org/dc/terms/modified"))
}
