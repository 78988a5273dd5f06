package repo

import (
	"strings"
	"testing"

	"github.com/c360studio/semstreams/vocabulary"
)

func TestPredicatesRegistered(t *testing.T) {
	predicates := []string{
		CollectionCumulativeSize,
		CollectionCumulativeCount,
		CollectionLicenseAggregate,
		CollectionAccessAggregate,
		CollectionSingleBinary,
		CommitTransaction,
		CommitTimestamp,
	}

	for _, pred := range predicates {
		t.Run(pred, func(t *testing.T) {
			meta := vocabulary.GetPredicateMetadata(pred)
			if meta.Description == "" {
				t.Errorf("predicate %s not registered or missing description", pred)
			}
		})
	}
}

func TestPredicateNaming(t *testing.T) {
	predicates := []string{
		CollectionCumulativeSize,
		CollectionCumulativeCount,
		CollectionLicenseAggregate,
		CollectionAccessAggregate,
		CollectionSingleBinary,
		CommitTransaction,
		CommitTimestamp,
	}

	for _, pred := range predicates {
		parts := strings.Split(pred, ".")
		if len(parts) != 3 {
			t.Errorf("predicate %s should use domain.category.property notation", pred)
		}
	}
}

func TestClassIRIsInNamespace(t *testing.T) {
	for _, iri := range []string{ClassAnything, ClassCollection, ClassTopCollection, ClassBinary, PropID, PropPID} {
		if !strings.HasPrefix(iri, Namespace) {
			t.Errorf("%s is outside %s", iri, Namespace)
		}
	}
}
