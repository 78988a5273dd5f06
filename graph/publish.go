// Package graph publishes recomputed collection aggregates to the knowledge
// graph.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/c360studio/semstreams/message"
	"github.com/google/uuid"

	"github.com/c360studio/semgate/aggregate"
	"github.com/c360studio/semgate/vocabulary/repo"
)

// Subject for graph ingestion.
const GraphIngestSubject = "graph.ingest.entity"

// Source tags triples produced by the aggregation engine.
const Source = "semgate.aggregate"

// StreamPublisher is the part of the NATS client the publisher needs.
type StreamPublisher interface {
	PublishToStream(ctx context.Context, subject string, data []byte) error
}

// RollupPublisher implements aggregate.Publisher on top of JetStream.
type RollupPublisher struct {
	nc  StreamPublisher
	now func() time.Time
}

var _ aggregate.Publisher = (*RollupPublisher)(nil)

// NewRollupPublisher creates a publisher. A nil client disables
// publishing.
func NewRollupPublisher(nc StreamPublisher) *RollupPublisher {
	return &RollupPublisher{nc: nc, now: time.Now}
}

// PublishRollups publishes one entity per collection. All triples of one
// call share a correlation id.
func (p *RollupPublisher) PublishRollups(ctx context.Context, txID int64, rollups []aggregate.Rollup) error {
	if p == nil || p.nc == nil {
		return nil // Skip publishing if no NATS client (graceful degradation)
	}
	now := p.now()
	correlation := uuid.New().String()
	for _, r := range rollups {
		payload := CollectionPayload(r, txID, now, correlation)
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal collection entity: %w", err)
		}
		if err := p.nc.PublishToStream(ctx, GraphIngestSubject, data); err != nil {
			return fmt.Errorf("publish collection entity %s: %w", payload.EntityID_, err)
		}
	}
	return nil
}

// CollectionPayload builds the graph entity of one collection rollup.
func CollectionPayload(r aggregate.Rollup, txID int64, now time.Time, correlation string) *CollectionEntity {
	entityID := CollectionEntityID(r.CollectionID)
	triple := func(predicate string, object any, datatype string) message.Triple {
		return message.Triple{
			Subject:    entityID,
			Predicate:  predicate,
			Object:     object,
			Source:     Source,
			Timestamp:  now,
			Confidence: 1.0,
			Context:    correlation,
			Datatype:   datatype,
		}
	}

	triples := []message.Triple{
		triple(repo.CollectionCumulativeSize, r.CumulativeSize, "xsd:nonNegativeInteger"),
		triple(repo.CollectionCumulativeCount, r.CumulativeCount, "xsd:nonNegativeInteger"),
		triple(repo.CollectionSingleBinary, r.SingleBinary, "xsd:boolean"),
		triple(repo.CommitTransaction, strconv.FormatInt(txID, 10), ""),
		triple(repo.CommitTimestamp, now.UTC().Format(time.RFC3339), "xsd:dateTime"),
	}
	for _, lang := range sortedLangs(r.Licenses) {
		triples = append(triples, triple(repo.CollectionLicenseAggregate, r.Licenses[lang], langDatatype(lang)))
	}
	for _, lang := range sortedLangs(r.Access) {
		triples = append(triples, triple(repo.CollectionAccessAggregate, r.Access[lang], langDatatype(lang)))
	}

	return &CollectionEntity{
		EntityID_:     entityID,
		TransactionID: txID,
		TripleData:    triples,
		UpdatedAt:     now,
	}
}

// CollectionEntityID generates a consistent entity ID for a collection.
// Format: semgate.local.repository.collection.collection.<id>
func CollectionEntityID(id int64) string {
	return fmt.Sprintf("semgate.local.repository.collection.collection.%d", id)
}

// langDatatype marks a language-tagged string the way Turtle writes it.
func langDatatype(lang string) string {
	if lang == "" {
		return "xsd:string"
	}
	return "@" + lang
}

func sortedLangs(m map[string]string) []string {
	langs := make([]string, 0, len(m))
	for l := range m {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}
