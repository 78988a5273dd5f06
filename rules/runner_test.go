package rules

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	failed []string
}

func (r *recorder) RuleFailed(stage Stage, rule string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, string(stage)+"/"+rule)
}

type subject struct {
	calls []string
}

func record(name string, err error) Func[*subject] {
	return func(_ context.Context, s *subject) error {
		s.calls = append(s.calls, name)
		return err
	}
}

func TestRunnerOrdersByName(t *testing.T) {
	reg := NewRegistry[*subject]()
	reg.MustRegister(StageCheck, "c-rule", record("c", nil))
	reg.MustRegister(StageCheck, "a-rule", record("a", nil))
	reg.MustRegister(StageCheck, "b-rule", record("b", nil))
	reg.MustRegister(StagePreNormalize, "other", record("pre", nil))

	s := &subject{}
	require.NoError(t, NewRunner(reg, nil, nil).Run(context.Background(), StageCheck, s))
	assert.Equal(t, []string{"a", "b", "c"}, s.calls)
	assert.Equal(t, []string{"a-rule", "b-rule", "c-rule"}, reg.Names(StageCheck))
}

func TestRunnerCollectsWithoutShortCircuit(t *testing.T) {
	reg := NewRegistry[*subject]()
	reg.MustRegister(StageCheck, "first", record("first", Failf("first broke")))
	reg.MustRegister(StageCheck, "second", record("second", nil))
	reg.MustRegister(StageCheck, "third", record("third", &CompositeFailure{Failures: []*Failure{
		{Message: "third broke"}, {Property: "p", Message: "and again"},
	}}))

	obs := &recorder{}
	s := &subject{}
	err := NewRunner(reg, nil, obs).Run(context.Background(), StageCheck, s)
	require.Error(t, err)

	assert.Equal(t, []string{"first", "second", "third"}, s.calls)
	assert.Equal(t, "first broke\nthird broke\np: and again", err.Error())

	c, ok := AsComposite(err)
	require.True(t, ok)
	assert.Equal(t, StageCheck, c.Stage)
	assert.Equal(t, "first", c.Failures[0].Rule)
	assert.Equal(t, "third", c.Failures[2].Rule)
	assert.Equal(t, []string{"check/first", "check/third"}, obs.failed)
}

func TestRunnerOperationalErrorAborts(t *testing.T) {
	boom := NewTransientError(errors.New("lock timeout"))
	reg := NewRegistry[*subject]()
	reg.MustRegister(StageCheck, "a", record("a", Failf("domain")))
	reg.MustRegister(StageCheck, "b", record("b", boom))
	reg.MustRegister(StageCheck, "c", record("c", nil))

	s := &subject{}
	err := NewRunner(reg, nil, nil).Run(context.Background(), StageCheck, s)
	require.Error(t, err)
	assert.Equal(t, []string{"a", "b"}, s.calls)
	assert.True(t, IsTransient(err))
	assert.False(t, IsFailure(err))
	assert.True(t, strings.HasPrefix(err.Error(), "rule b:"))
}

func TestRunnerHonoursCancellation(t *testing.T) {
	reg := NewRegistry[*subject]()
	reg.MustRegister(StageCheck, "a", record("a", nil))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewRunner(reg, nil, nil).Run(ctx, StageCheck, &subject{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	reg := NewRegistry[*subject]()
	require.NoError(t, reg.Register(StageCheck, "a", record("a", nil)))
	assert.Error(t, reg.Register(StageCheck, "a", record("a", nil)))
	assert.NoError(t, reg.Register(StagePostNormalize, "a", record("a", nil)))
	assert.Error(t, reg.Register(StageCheck, "", record("x", nil)))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		failure   bool
		transient bool
		fatal     bool
	}{
		{"failure", Failf("x"), true, false, false},
		{"wrapped failure", errors.Join(errors.New("ctx"), Failf("x")), true, false, false},
		{"composite", &CompositeFailure{}, true, false, false},
		{"transient", NewTransientError(errors.New("x")), false, true, false},
		{"fatal", NewFatalError(errors.New("x")), false, false, true},
		{"plain", errors.New("x"), false, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.failure, IsFailure(tt.err))
			assert.Equal(t, tt.transient, IsTransient(tt.err))
			assert.Equal(t, tt.fatal, IsFatal(tt.err))
		})
	}
}

func TestWithPropertyAndFailures(t *testing.T) {
	err := WithProperty(Failf("value does not match data type"), "http://p")
	assert.Equal(t, "http://p: value does not match data type", err.Error())

	plain := errors.New("x")
	assert.Same(t, plain, WithProperty(plain, "p"))

	var fs Failures
	assert.NoError(t, fs.Err())
	fs.Addf("one %d", 1)
	assert.Equal(t, "one 1", fs.Err().Error())
	fs.AddProperty("p", "two")
	assert.Equal(t, "one 1\np: two", fs.Err().Error())
}
