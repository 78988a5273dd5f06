package graph

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"
)

func init() {
	err := component.RegisterPayload(&component.PayloadRegistration{
		Domain:      "graph",
		Category:    "entity",
		Version:     "v1",
		Description: "Collection aggregates recomputed by a transaction commit",
		Factory:     func() any { return &CollectionEntity{} },
	})
	if err != nil {
		panic("failed to register CollectionEntity: " + err.Error())
	}
}

// CollectionEntityType is the message type graph ingestion consumes.
var CollectionEntityType = message.Type{Domain: "graph", Category: "entity", Version: "v1"}

// CollectionEntity is the graph view of one collection after a commit.
type CollectionEntity struct {
	EntityID_     string           `json:"id"`
	TransactionID int64            `json:"transaction_id"`
	TripleData    []message.Triple `json:"triples"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

func (e *CollectionEntity) EntityID() string          { return e.EntityID_ }
func (e *CollectionEntity) Triples() []message.Triple { return e.TripleData }
func (e *CollectionEntity) Schema() message.Type      { return CollectionEntityType }

// Validate requires an id, the originating transaction and that every
// triple describes the collection.
func (e *CollectionEntity) Validate() error {
	if e.EntityID_ == "" {
		return errors.New("entity ID is required")
	}
	if e.TransactionID <= 0 {
		return fmt.Errorf("collection %s: transaction id is required", e.EntityID_)
	}
	for i, t := range e.TripleData {
		if t.Subject != e.EntityID_ {
			return fmt.Errorf("triple %d subject %q does not match entity %q", i, t.Subject, e.EntityID_)
		}
		if t.Predicate == "" {
			return fmt.Errorf("triple %d has no predicate", i)
		}
	}
	return nil
}

func (e *CollectionEntity) MarshalJSON() ([]byte, error) {
	type Alias CollectionEntity
	return json.Marshal((*Alias)(e))
}

func (e *CollectionEntity) UnmarshalJSON(data []byte) error {
	type Alias CollectionEntity
	return json.Unmarshal(data, (*Alias)(e))
}
