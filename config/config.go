// Package config provides configuration loading and management for semgate.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/c360studio/semgate/identifier"
	"github.com/c360studio/semgate/pid"
	"github.com/c360studio/semgate/vocabulary/repo"
	"gopkg.in/yaml.v3"
)

// Config represents the complete gate configuration
type Config struct {
	Schema      SchemaConfig     `yaml:"schema"`
	Namespaces  NamespaceConfig  `yaml:"namespaces"`
	Ontology    OntologyConfig   `yaml:"ontology"`
	Identifiers IdentifierConfig `yaml:"identifiers"`
	Resolver    ResolverConfig   `yaml:"resolver"`
	PID         PIDConfig        `yaml:"pid"`
	Access      AccessConfig     `yaml:"access"`
	Aggregate   AggregateConfig  `yaml:"aggregate"`
	Database    DatabaseConfig   `yaml:"database"`
	NATS        NATSConfig       `yaml:"nats"`
}

// SchemaConfig names the predicates and classes the rules operate on
type SchemaConfig struct {
	ID                   string `yaml:"id"`
	Title                string `yaml:"title"`
	Parent               string `yaml:"parent"`
	BinarySize           string `yaml:"binary_size"`
	CumulativeSize       string `yaml:"cumulative_size"`
	CumulativeCount      string `yaml:"cumulative_count"`
	License              string `yaml:"license"`
	LicenseAgg           string `yaml:"license_aggregate"`
	AccessRestriction    string `yaml:"access_restriction"`
	AccessRestrictionAgg string `yaml:"access_restriction_aggregate"`
	PID                  string `yaml:"pid"`
	DependentPID         string `yaml:"dependent_pid"`
	MemberOf             string `yaml:"member_of"`
	ACLRead              string `yaml:"acl_read"`
	IsNewVersionOf       string `yaml:"is_new_version_of"`
	HasNextItem          string `yaml:"has_next_item"`
	BibliographicRecord  string `yaml:"bibliographic_record"`
	Latitude             string `yaml:"latitude"`
	Longitude            string `yaml:"longitude"`
	WKT                  string `yaml:"wkt"`

	// LabelPredicates are read, in order, when rendering aggregate labels.
	LabelPredicates []string `yaml:"label_predicates"`

	CollectionClasses    []string `yaml:"collection_classes"`
	TopCollectionClasses []string `yaml:"top_collection_classes"`
	BinaryClasses        []string `yaml:"binary_classes"`
	PublicClasses        []string `yaml:"public_classes"`
	EligibleClasses      []string `yaml:"eligible_classes"`
}

// NamespaceConfig configures identifier namespaces
type NamespaceConfig struct {
	// Repository is the namespace of repository-internal identifiers.
	Repository string `yaml:"repository"`
	// Identifiers is the namespace of identifiers eligible as PID targets.
	Identifiers string `yaml:"identifiers"`
	// SubNamespaces are parts of Identifiers that never receive PIDs.
	SubNamespaces []string `yaml:"sub_namespaces"`
	// DependentRecords replaces Identifiers in dependent-record PID targets.
	DependentRecords string `yaml:"dependent_records"`
	// DependentSets flag resources that receive a dependent-record PID.
	DependentSets []string `yaml:"dependent_sets"`
}

// OntologyConfig locates the ontology snapshot
type OntologyConfig struct {
	// Paths are glob patterns (doublestar syntax) of ontology YAML files.
	Paths []string `yaml:"paths"`
}

// IdentifierConfig configures identifier normalization
type IdentifierConfig struct {
	// Rules replace the built-in namespace rules when non-empty.
	Rules []identifier.Rule `yaml:"rules"`
}

// ResolverConfig configures external URI verification
type ResolverConfig struct {
	Enabled            bool   `yaml:"enabled"`
	Timeout            string `yaml:"timeout"`
	CanonicalRedirects bool   `yaml:"canonical_redirects"`
	// KVBucket persists resolutions in JetStream KV when set.
	KVBucket string `yaml:"kv_bucket"`
}

// PIDConfig configures persistent identifier registration
type PIDConfig struct {
	Enabled     bool              `yaml:"enabled"`
	Registry    pid.ClientConfig  `yaml:"registry"`
	Dependent   *pid.ClientConfig `yaml:"dependent,omitempty"`
	PublicRoles []string          `yaml:"public_roles"`
	Sentinel    string            `yaml:"sentinel"`
}

// AccessConfig maps access-restriction concepts to read roles
type AccessConfig struct {
	// Rights maps an access-restriction concept URI to the read roles it grants.
	Rights map[string][]string `yaml:"rights"`
	// ManagedRoles are removed when the access restriction no longer grants them.
	ManagedRoles []string `yaml:"managed_roles"`
}

// AggregateConfig configures commit-time aggregation
type AggregateConfig struct {
	// Languages always receive an aggregate literal, even when empty.
	Languages []string `yaml:"languages"`
	// LockTimeout bounds lock waits inside the administrative transaction.
	LockTimeout string `yaml:"lock_timeout"`
	// MaxAttempts bounds retries of serialization failures.
	MaxAttempts int `yaml:"max_attempts"`
	// Publish sends recomputed aggregates to the graph.
	Publish bool `yaml:"publish"`
}

// DatabaseConfig configures the relational store
type DatabaseConfig struct {
	// DSN is a lib/pq connection string; ${VAR} references are expanded.
	DSN          string `yaml:"dsn"`
	MaxOpenConns int    `yaml:"max_open_conns"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	URL string `yaml:"url"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Schema: SchemaConfig{
			ID:                   repo.PropID,
			Title:                repo.PropTitle,
			Parent:               repo.PropParent,
			BinarySize:           repo.PropBinarySize,
			CumulativeSize:       repo.PropCumulativeSize,
			CumulativeCount:      repo.PropCumulativeCount,
			License:              repo.PropLicense,
			LicenseAgg:           repo.PropLicenseAgg,
			AccessRestriction:    repo.PropAccessRestriction,
			AccessRestrictionAgg: repo.PropAccessRestrictionAgg,
			PID:                  repo.PropPID,
			DependentPID:         repo.PropDependentPID,
			MemberOf:             repo.PropMemberOf,
			ACLRead:              repo.PropACLRead,
			IsNewVersionOf:       repo.PropIsNewVersionOf,
			HasNextItem:          repo.PropHasNextItem,
			BibliographicRecord:  repo.PropBibliographicRecord,
			Latitude:             repo.PropLatitude,
			Longitude:            repo.PropLongitude,
			WKT:                  repo.PropWKT,
			LabelPredicates:      []string{repo.SKOSPrefLabel, repo.RDFSLabel},
			CollectionClasses:    []string{repo.ClassCollection},
			TopCollectionClasses: []string{repo.ClassTopCollection},
			BinaryClasses:        []string{repo.ClassBinary},
			PublicClasses:        []string{repo.ClassPublication},
			EligibleClasses:      []string{repo.ClassDataset},
		},
		Namespaces: NamespaceConfig{
			Repository: repo.EntityNamespace,
		},
		Ontology: OntologyConfig{
			Paths: []string{"ontology/**/*.yaml"},
		},
		Resolver: ResolverConfig{
			Enabled: false,
			Timeout: "10s",
		},
		PID: PIDConfig{
			Enabled:     false,
			PublicRoles: []string{repo.RolePublic, repo.RoleAcademic},
			Sentinel:    repo.PIDCreateSentinel,
		},
		Aggregate: AggregateConfig{
			Languages:   []string{"en", "de"},
			LockTimeout: "5s",
			MaxAttempts: 3,
			Publish:     true,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 10,
		},
		NATS: NATSConfig{
			URL: "nats://localhost:4222",
		},
	}
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	if c.Schema.ID == "" || c.Schema.Title == "" || c.Schema.Parent == "" {
		return fmt.Errorf("schema.id, schema.title and schema.parent are required")
	}
	if len(c.Schema.CollectionClasses)+len(c.Schema.TopCollectionClasses) == 0 {
		return fmt.Errorf("at least one collection class is required")
	}
	if c.Namespaces.Repository == "" {
		return fmt.Errorf("namespaces.repository is required")
	}
	if len(c.Ontology.Paths) == 0 {
		return fmt.Errorf("ontology.paths is required")
	}
	if _, err := parseDuration(c.Resolver.Timeout); err != nil {
		return fmt.Errorf("resolver.timeout: %w", err)
	}
	if _, err := parseDuration(c.Aggregate.LockTimeout); err != nil {
		return fmt.Errorf("aggregate.lock_timeout: %w", err)
	}
	if c.Aggregate.MaxAttempts < 1 {
		return fmt.Errorf("aggregate.max_attempts must be at least 1")
	}
	if c.PID.Enabled {
		if err := c.PID.Registry.Validate(); err != nil {
			return err
		}
		if c.Namespaces.Identifiers == "" {
			return fmt.Errorf("namespaces.identifiers is required when pid is enabled")
		}
	}
	if len(c.Namespaces.DependentSets) > 0 && c.Namespaces.DependentRecords == "" {
		return fmt.Errorf("namespaces.dependent_records is required with dependent_sets")
	}
	return nil
}

// LockTimeout returns the parsed aggregation lock timeout
func (c *Config) LockTimeout() time.Duration {
	d, _ := parseDuration(c.Aggregate.LockTimeout)
	return d
}

// ResolverTimeout returns the parsed resolver timeout
func (c *Config) ResolverTimeout() time.Duration {
	d, _ := parseDuration(c.Resolver.Timeout)
	return d
}

// DSN returns the database DSN with environment references expanded
func (c *Config) DSN() string {
	return os.ExpandEnv(c.Database.DSN)
}

// IsCollectionClass reports whether class is a collection or top collection
func (c *Config) IsCollectionClass(class string) bool {
	for _, cc := range c.CollectionClasses() {
		if cc == class {
			return true
		}
	}
	return false
}

// CollectionClasses returns collection and top-collection classes together
func (c *Config) CollectionClasses() []string {
	out := make([]string, 0, len(c.Schema.CollectionClasses)+len(c.Schema.TopCollectionClasses))
	out = append(out, c.Schema.CollectionClasses...)
	return append(out, c.Schema.TopCollectionClasses...)
}

// PIDSettings derives the PID manager settings
func (c *Config) PIDSettings() pid.Settings {
	return pid.Settings{
		PIDPredicate:          c.Schema.PID,
		DependentPIDPredicate: c.Schema.DependentPID,
		IDPredicate:           c.Schema.ID,
		ACLReadPredicate:      c.Schema.ACLRead,
		MemberOfPredicate:     c.Schema.MemberOf,
		IDNamespace:           c.Namespaces.Identifiers,
		SubNamespaces:         c.Namespaces.SubNamespaces,
		PublicClasses:         c.Schema.PublicClasses,
		EligibleClasses:       c.Schema.EligibleClasses,
		PublicRoles:           c.PID.PublicRoles,
		DependentSets:         c.Namespaces.DependentSets,
		DependentNamespace:    c.Namespaces.DependentRecords,
		Sentinel:              c.PID.Sentinel,
	}
}

// IdentifierRules returns the configured rules or the built-in defaults
func (c *Config) IdentifierRules() []identifier.Rule {
	if len(c.Identifiers.Rules) > 0 {
		return c.Identifiers.Rules
	}
	return identifier.DefaultRules()
}

func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, err
	}
	if d < 0 {
		return 0, fmt.Errorf("must be non-negative")
	}
	return d, nil
}

// LoadFromFile loads configuration from a YAML file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	// Ensure parent directory exists
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values)
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	mergeSchema(&c.Schema, &other.Schema)

	// Namespaces
	mergeString(&c.Namespaces.Repository, other.Namespaces.Repository)
	mergeString(&c.Namespaces.Identifiers, other.Namespaces.Identifiers)
	mergeString(&c.Namespaces.DependentRecords, other.Namespaces.DependentRecords)
	mergeSlice(&c.Namespaces.SubNamespaces, other.Namespaces.SubNamespaces)
	mergeSlice(&c.Namespaces.DependentSets, other.Namespaces.DependentSets)

	// Ontology and identifiers
	mergeSlice(&c.Ontology.Paths, other.Ontology.Paths)
	if len(other.Identifiers.Rules) > 0 {
		c.Identifiers.Rules = other.Identifiers.Rules
	}

	// Resolver
	if other.Resolver.Enabled {
		c.Resolver.Enabled = true
	}
	if other.Resolver.CanonicalRedirects {
		c.Resolver.CanonicalRedirects = true
	}
	mergeString(&c.Resolver.Timeout, other.Resolver.Timeout)
	mergeString(&c.Resolver.KVBucket, other.Resolver.KVBucket)

	// PID
	if other.PID.Enabled {
		c.PID.Enabled = true
	}
	if other.PID.Registry.BaseURL != "" {
		c.PID.Registry = other.PID.Registry
	}
	if other.PID.Dependent != nil {
		c.PID.Dependent = other.PID.Dependent
	}
	mergeSlice(&c.PID.PublicRoles, other.PID.PublicRoles)
	mergeString(&c.PID.Sentinel, other.PID.Sentinel)

	// Access
	if len(other.Access.Rights) > 0 {
		c.Access.Rights = other.Access.Rights
	}
	mergeSlice(&c.Access.ManagedRoles, other.Access.ManagedRoles)

	// Aggregate
	mergeSlice(&c.Aggregate.Languages, other.Aggregate.Languages)
	mergeString(&c.Aggregate.LockTimeout, other.Aggregate.LockTimeout)
	if other.Aggregate.MaxAttempts != 0 {
		c.Aggregate.MaxAttempts = other.Aggregate.MaxAttempts
	}
	c.Aggregate.Publish = other.Aggregate.Publish || c.Aggregate.Publish

	// Database
	mergeString(&c.Database.DSN, other.Database.DSN)
	if other.Database.MaxOpenConns != 0 {
		c.Database.MaxOpenConns = other.Database.MaxOpenConns
	}

	// NATS
	mergeString(&c.NATS.URL, other.NATS.URL)
}

func mergeSchema(dst, src *SchemaConfig) {
	type field struct {
		dst *string
		src string
	}
	for _, f := range []field{
		{&dst.ID, src.ID},
		{&dst.Title, src.Title},
		{&dst.Parent, src.Parent},
		{&dst.BinarySize, src.BinarySize},
		{&dst.CumulativeSize, src.CumulativeSize},
		{&dst.CumulativeCount, src.CumulativeCount},
		{&dst.License, src.License},
		{&dst.LicenseAgg, src.LicenseAgg},
		{&dst.AccessRestriction, src.AccessRestriction},
		{&dst.AccessRestrictionAgg, src.AccessRestrictionAgg},
		{&dst.PID, src.PID},
		{&dst.DependentPID, src.DependentPID},
		{&dst.MemberOf, src.MemberOf},
		{&dst.ACLRead, src.ACLRead},
		{&dst.IsNewVersionOf, src.IsNewVersionOf},
		{&dst.HasNextItem, src.HasNextItem},
		{&dst.BibliographicRecord, src.BibliographicRecord},
		{&dst.Latitude, src.Latitude},
		{&dst.Longitude, src.Longitude},
		{&dst.WKT, src.WKT},
	} {
		mergeString(f.dst, f.src)
	}
	mergeSlice(&dst.LabelPredicates, src.LabelPredicates)
	mergeSlice(&dst.CollectionClasses, src.CollectionClasses)
	mergeSlice(&dst.TopCollectionClasses, src.TopCollectionClasses)
	mergeSlice(&dst.BinaryClasses, src.BinaryClasses)
	mergeSlice(&dst.PublicClasses, src.PublicClasses)
	mergeSlice(&dst.EligibleClasses, src.EligibleClasses)
}

func mergeString(dst *string, src string) {
	if src != "" {
		*dst = src
	}
}

func mergeSlice(dst *[]string, src []string) {
	if len(src) > 0 {
		*dst = src
	}
}
