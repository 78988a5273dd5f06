package doorkeeper

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/c360studio/semstreams/component"
	"github.com/c360studio/semstreams/message"

	"github.com/c360studio/semgate/resource"
)

// Request/reply subjects.
const (
	SubjectResourceEdit      = "semgate.resource.edit"
	SubjectTransactionCommit = "semgate.transaction.commit"
)

// EditRequest asks for a resource edit to be validated.
type EditRequest struct {
	ResourceID string          `json:"resource_id"`
	Path       string          `json:"path,omitempty"`
	Graph      *resource.Graph `json:"graph"`
}

// EditResponse carries the normalized graph or the failures.
type EditResponse struct {
	// Valid indicates the edit may be committed
	Valid bool `json:"valid"`

	// Graph is the normalized graph, set when Valid
	Graph *resource.Graph `json:"graph,omitempty"`

	// Failures are the domain failure messages in rule order
	Failures []string `json:"failures,omitempty"`

	// Error is set if validation could not be performed
	Error string `json:"error,omitempty"`

	// Operational marks Error as an infrastructure fault worth retrying
	Operational bool `json:"operational,omitempty"`

	RequestID string `json:"request_id"`
}

// CommitRequest reports a host transaction commit.
type CommitRequest struct {
	Method        string  `json:"method"`
	TransactionID int64   `json:"transaction_id"`
	ResourceIDs   []int64 `json:"resource_ids"`
}

// CommitResponse reports the outcome of the commit pass.
type CommitResponse struct {
	OK                 bool     `json:"ok"`
	Failures           []string `json:"failures,omitempty"`
	CollectionsUpdated int      `json:"collections_updated"`
	Error              string   `json:"error,omitempty"`
	Operational        bool     `json:"operational,omitempty"`
	RequestID          string   `json:"request_id"`
}

// Schema returns the message type for EditRequest.
func (p *EditRequest) Schema() message.Type {
	return EditRequestType
}

// Validate validates the EditRequest.
func (p *EditRequest) Validate() error {
	if p.ResourceID == "" {
		return fmt.Errorf("resource_id is required")
	}
	if p.Graph == nil {
		return fmt.Errorf("graph is required")
	}
	return nil
}

// MarshalJSON marshals the EditRequest to JSON.
func (p *EditRequest) MarshalJSON() ([]byte, error) {
	type Alias EditRequest
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON unmarshals the EditRequest from JSON.
func (p *EditRequest) UnmarshalJSON(data []byte) error {
	type Alias EditRequest
	return json.Unmarshal(data, (*Alias)(p))
}

// Schema returns the message type for EditResponse.
func (p *EditResponse) Schema() message.Type {
	return EditResponseType
}

// Validate validates the EditResponse.
func (p *EditResponse) Validate() error {
	return nil
}

// Schema returns the message type for CommitRequest.
func (p *CommitRequest) Schema() message.Type {
	return CommitRequestType
}

// Validate validates the CommitRequest.
func (p *CommitRequest) Validate() error {
	if p.Method == "" {
		return fmt.Errorf("method is required")
	}
	if p.TransactionID <= 0 {
		return fmt.Errorf("transaction_id must be positive")
	}
	return nil
}

// MarshalJSON marshals the CommitRequest to JSON.
func (p *CommitRequest) MarshalJSON() ([]byte, error) {
	type Alias CommitRequest
	return json.Marshal((*Alias)(p))
}

// UnmarshalJSON unmarshals the CommitRequest from JSON.
func (p *CommitRequest) UnmarshalJSON(data []byte) error {
	type Alias CommitRequest
	return json.Unmarshal(data, (*Alias)(p))
}

// Schema returns the message type for CommitResponse.
func (p *CommitResponse) Schema() message.Type {
	return CommitResponseType
}

// Validate validates the CommitResponse.
func (p *CommitResponse) Validate() error {
	return nil
}

// Message types for the doorkeeper payloads.
var (
	EditRequestType    = message.Type{Domain: "semgate", Category: "edit.request", Version: "v1"}
	EditResponseType   = message.Type{Domain: "semgate", Category: "edit.response", Version: "v1"}
	CommitRequestType  = message.Type{Domain: "semgate", Category: "commit.request", Version: "v1"}
	CommitResponseType = message.Type{Domain: "semgate", Category: "commit.response", Version: "v1"}
)

func init() {
	registrations := []*component.PayloadRegistration{
		{
			Domain:      "semgate",
			Category:    "edit.request",
			Version:     "v1",
			Description: "Resource edit validation request",
			Factory:     func() any { return &EditRequest{} },
		},
		{
			Domain:      "semgate",
			Category:    "edit.response",
			Version:     "v1",
			Description: "Resource edit validation response",
			Factory:     func() any { return &EditResponse{} },
		},
		{
			Domain:      "semgate",
			Category:    "commit.request",
			Version:     "v1",
			Description: "Transaction commit request",
			Factory:     func() any { return &CommitRequest{} },
		},
		{
			Domain:      "semgate",
			Category:    "commit.response",
			Version:     "v1",
			Description: "Transaction commit response",
			Factory:     func() any { return &CommitResponse{} },
		},
	}
	for _, r := range registrations {
		if err := component.RegisterPayload(r); err != nil {
			log.Printf("ERROR: failed to register %s.%s: %v", r.Domain, r.Category, err)
		}
	}
}
