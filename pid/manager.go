package pid

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/c360studio/semgate/identifier"
	"github.com/c360studio/semgate/resource"
	"github.com/c360studio/semgate/rules"
)

// Settings names the predicates, namespaces and classes the lifecycle
// depends on.
type Settings struct {
	PIDPredicate          string
	DependentPIDPredicate string
	IDPredicate           string
	ACLReadPredicate      string
	MemberOfPredicate     string

	// IDNamespace is the namespace of identifiers eligible as PID targets.
	IDNamespace string
	// SubNamespaces are excluded parts of IDNamespace.
	SubNamespaces []string

	// PublicClasses always receive a PID.
	PublicClasses []string
	// EligibleClasses receive a PID when their read ACL is public.
	EligibleClasses []string
	PublicRoles     []string

	// DependentSets trigger dependent-record PIDs for their members.
	DependentSets []string
	// DependentNamespace replaces IDNamespace in dependent-record targets.
	DependentNamespace string

	Sentinel string
}

// Observer records PID operations.
type Observer interface {
	PIDOperation(op, result string)
}

// Manager maintains the primary and dependent-record PIDs of a resource.
type Manager struct {
	settings   Settings
	service    Service
	dependent  Service
	normalizer identifier.Normalizer
	observer   Observer
	logger     *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithDependentService uses a separate registry for dependent-record PIDs.
func WithDependentService(s Service) ManagerOption {
	return func(m *Manager) {
		m.dependent = s
	}
}

// WithObserver records PID operations.
func WithObserver(o Observer) ManagerOption {
	return func(m *Manager) {
		m.observer = o
	}
}

// WithManagerLogger sets the logger.
func WithManagerLogger(logger *slog.Logger) ManagerOption {
	return func(m *Manager) {
		m.logger = logger
	}
}

// NewManager creates a lifecycle manager. A nil service disables
// registration; PIDs are then only normalized and promoted.
func NewManager(settings Settings, service Service, normalizer identifier.Normalizer, opts ...ManagerOption) *Manager {
	if settings.Sentinel == "" {
		settings.Sentinel = "create"
	}
	m := &Manager{
		settings:   settings,
		service:    service,
		normalizer: normalizer,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.dependent == nil {
		m.dependent = service
	}
	return m
}

// IsPublic reports whether the resource is publicly visible.
func (m *Manager) IsPublic(g *resource.Graph) bool {
	if g.HasClass(m.settings.PublicClasses...) {
		return true
	}
	if !g.HasClass(m.settings.EligibleClasses...) {
		return false
	}
	for _, role := range g.NamedNodes(m.settings.ACLReadPredicate) {
		for _, public := range m.settings.PublicRoles {
			if role == public {
				return true
			}
		}
	}
	return false
}

// QualifyingID returns the first identifier eligible as a PID target.
func (m *Manager) QualifyingID(g *resource.Graph) string {
	for _, id := range g.NamedNodes(m.settings.IDPredicate) {
		if !strings.HasPrefix(id, m.settings.IDNamespace) {
			continue
		}
		if resource.HasPrefix(id, m.settings.SubNamespaces...) {
			continue
		}
		return id
	}
	return ""
}

// MaintainPID mints or refreshes the primary PID, re-normalizes recorded
// PIDs and promotes them into the identifier set. strict selects strict
// normalization.
func (m *Manager) MaintainPID(ctx context.Context, g *resource.Graph, strict bool) error {
	pred := m.settings.PIDPredicate
	sentinel := g.Contains(pred, resource.Literal(m.settings.Sentinel, "", ""))

	if sentinel || m.IsPublic(g) {
		target := m.QualifyingID(g)
		switch {
		case target == "" && sentinel:
			return rules.Failf("PID requested but resource has no identifier in %s", m.settings.IDNamespace)
		case target != "":
			if err := m.register(ctx, g, target); err != nil {
				return err
			}
		}
	}

	var fs rules.Failures
	for _, v := range g.Literals(pred) {
		if v.Value == m.settings.Sentinel {
			continue
		}
		if strings.TrimSpace(v.Value) == "" {
			fs.AddProperty(pred, "empty PID")
			continue
		}
		normalized, err := m.normalizer.Normalize(v.Value, strict)
		if err != nil {
			fs.AddProperty(pred, "invalid PID %q: %v", v.Value, err)
			continue
		}
		if normalized != v.Value {
			g.Replace(pred, v, resource.Literal(normalized, v.Lang, v.Datatype))
		}
		g.AddUnique(m.settings.IDPredicate, resource.NamedNode(normalized))
	}
	return fs.Err()
}

func (m *Manager) register(ctx context.Context, g *resource.Graph, target string) error {
	pred := m.settings.PIDPredicate
	existing := ""
	for _, v := range g.Literals(pred) {
		if v.Value != m.settings.Sentinel && strings.TrimSpace(v.Value) != "" {
			existing = v.Value
			break
		}
	}

	if m.service == nil {
		m.logger.Info("PID registration disabled, skipping", "node", g.Node, "target", target)
		return nil
	}

	if existing == "" {
		pid, err := m.service.Create(ctx, target)
		m.observe("create", err)
		if err != nil {
			return fmt.Errorf("create PID for %s: %w", target, err)
		}
		g.DeleteValue(pred, resource.Literal(m.settings.Sentinel, "", ""))
		g.Add(pred, resource.Literal(pid, "", ""))
		return nil
	}

	g.DeleteValue(pred, resource.Literal(m.settings.Sentinel, "", ""))
	status, err := m.service.Update(ctx, existing, target)
	m.observe("update", err)
	if err != nil {
		return fmt.Errorf("update PID %s: %w", existing, err)
	}
	if status != http.StatusOK && status != http.StatusNoContent && status != http.StatusCreated {
		return rules.NewTransientError(fmt.Errorf("update PID %s: status %d", existing, status))
	}
	return nil
}

// MaintainDependentPID mints the dependent-record PID once for members of
// a configured set. Minting it requests a primary PID when none exists.
func (m *Manager) MaintainDependentPID(ctx context.Context, g *resource.Graph) error {
	if !m.isDependentMember(g) || g.Has(m.settings.DependentPIDPredicate) {
		return nil
	}
	id := m.QualifyingID(g)
	if id == "" {
		return rules.WithProperty(
			rules.Failf("dependent PID requires an identifier in %s", m.settings.IDNamespace),
			m.settings.DependentPIDPredicate)
	}
	target := m.settings.DependentNamespace + strings.TrimPrefix(id, m.settings.IDNamespace)

	if m.dependent == nil {
		m.logger.Info("PID registration disabled, skipping dependent PID", "node", g.Node, "target", target)
		return nil
	}
	pid, err := m.dependent.Create(ctx, target)
	m.observe("create_dependent", err)
	if err != nil {
		return fmt.Errorf("create dependent PID for %s: %w", target, err)
	}
	g.Add(m.settings.DependentPIDPredicate, resource.Literal(pid, "", ""))

	if len(g.Literals(m.settings.PIDPredicate)) == 0 {
		g.Add(m.settings.PIDPredicate, resource.Literal(m.settings.Sentinel, "", ""))
	}
	return nil
}

func (m *Manager) isDependentMember(g *resource.Graph) bool {
	for _, set := range g.NamedNodes(m.settings.MemberOfPredicate) {
		for _, want := range m.settings.DependentSets {
			if set == want {
				return true
			}
		}
	}
	return false
}

func (m *Manager) observe(op string, err error) {
	if m.observer == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.observer.PIDOperation(op, result)
}
