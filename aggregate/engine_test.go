package aggregate

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/c360studio/semstreams/pkg/retry"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c360studio/semgate/config"
	"github.com/c360studio/semgate/rules"
)

type capturePublisher struct {
	txID    int64
	rollups []Rollup
}

func (p *capturePublisher) PublishRollups(_ context.Context, txID int64, rollups []Rollup) error {
	p.txID = txID
	p.rollups = rollups
	return nil
}

func newMockEngine(t *testing.T, opts ...Option) (*Engine, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	opts = append([]Option{WithRetry(retry.Config{
		MaxAttempts:  3,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	})}, opts...)
	return NewEngine(db, config.DefaultConfig(), opts...), mock
}

func expectBegin(mock sqlmock.Sqlmock) {
	mock.ExpectBegin()
	mock.ExpectExec("SET LOCAL lock_timeout = 5000").WillReturnResult(sqlmock.NewResult(0, 0))
}

func labeledRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "label"})
}

func edgeRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "target_id"})
}

// expectCleanRules expects every transaction rule to find nothing.
func expectCleanRules(mock sqlmock.Sqlmock, txID int64) {
	mock.ExpectQuery(queryAutoCreated).WithArgs(txID, sqlmock.AnyArg()).WillReturnRows(labeledRows())
	mock.ExpectQuery(queryEmptyCollections).WithArgs(txID, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(labeledRows())
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(edgeRows())
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(edgeRows())
}

func expectNoAffected(mock sqlmock.Sqlmock) {
	mock.ExpectExec(createAffected).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertAffected).WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestTransactionRuleOrder(t *testing.T) {
	e, _ := newMockEngine(t)
	assert.Equal(t, []string{
		RuleCheckAutoCreatedResources,
		RuleCheckEmptyCollections,
		RuleCheckNewVersionCycles,
		RuleCheckNextItemChain,
	}, e.Rules())
}

func TestIgnoresNonCommitMethod(t *testing.T) {
	e, mock := newMockEngine(t)

	res, err := e.OnTransactionCommit(context.Background(), "rollback", 7, []int64{1})
	require.NoError(t, err)
	assert.Equal(t, int64(7), res.TransactionID)
	assert.Empty(t, res.Rollups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEmptyCollectionRejected(t *testing.T) {
	e, mock := newMockEngine(t)
	expectBegin(mock)
	mock.ExpectQuery(queryAutoCreated).WithArgs(int64(9), sqlmock.AnyArg()).WillReturnRows(labeledRows())
	mock.ExpectQuery(queryEmptyCollections).
		WithArgs(int64(9), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(labeledRows().AddRow(5, "https://example.org/coll-5"))
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(edgeRows())
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).WillReturnRows(edgeRows())
	mock.ExpectRollback()

	_, err := e.OnTransactionCommit(context.Background(), MethodCommit, 9, []int64{5})
	require.Error(t, err)
	assert.True(t, rules.IsFailure(err))
	assert.Equal(t, "Transaction created empty collections: https://example.org/coll-5", err.Error())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAutoCreatedAndChainFailuresCollected(t *testing.T) {
	e, mock := newMockEngine(t)
	expectBegin(mock)
	mock.ExpectQuery(queryAutoCreated).WithArgs(int64(3), sqlmock.AnyArg()).
		WillReturnRows(labeledRows().AddRow(11, "11").AddRow(12, "ext-12"))
	mock.ExpectQuery(queryEmptyCollections).
		WithArgs(int64(3), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(labeledRows())
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(edgeRows().AddRow(1, 2).AddRow(2, 1))
	mock.ExpectQuery(queryChain).WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(edgeRows().AddRow(1, 2).AddRow(1, 3))
	mock.ExpectRollback()

	_, err := e.OnTransactionCommit(context.Background(), MethodCommit, 3, []int64{1, 11, 12})
	require.Error(t, err)
	c, ok := rules.AsComposite(err)
	require.True(t, ok)
	assert.Equal(t, []string{
		"Transaction created resources without any metadata: 11, ext-12",
		"New version chain contains a cycle at resource 1",
		"Resource 1 has more than one next item",
	}, c.Messages())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCollectionAggregatesWritten(t *testing.T) {
	pub := &capturePublisher{}
	e, mock := newMockEngine(t, WithPublisher(pub))
	expectBegin(mock)
	expectCleanRules(mock, 4)

	mock.ExpectExec(createAffected).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertAffected).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(createMembers).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(insertMembers).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectQuery(queryCounts).
		WillReturnRows(sqlmock.NewRows([]string{"id", "size", "count", "members", "binaries", "identifier"}).
			AddRow(10, 300, 2, 2, 2, "top"))

	mock.ExpectExec(deleteProperty).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNumbers).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(deleteProperty).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertNumbers).WillReturnResult(sqlmock.NewResult(0, 1))

	mock.ExpectQuery(queryCategories).
		WillReturnRows(sqlmock.NewRows([]string{"collection_id", "lang", "value", "count"}).
			AddRow(10, "en", "CC BY 4.0", 2))
	mock.ExpectExec(deleteProperty).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(insertStrings).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(queryCategories).
		WillReturnRows(sqlmock.NewRows([]string{"collection_id", "lang", "value", "count"}))
	mock.ExpectExec(deleteProperty).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(insertStrings).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	res, err := e.OnTransactionCommit(context.Background(), MethodCommit, 4, []int64{21, 22})
	require.NoError(t, err)
	require.Len(t, res.Rollups, 1)

	r := res.Rollups[0]
	assert.Equal(t, int64(10), r.CollectionID)
	assert.Equal(t, "top", r.Identifier)
	assert.Equal(t, int64(300), r.CumulativeSize)
	assert.Equal(t, int64(2), r.CumulativeCount)
	assert.False(t, r.SingleBinary)
	assert.Equal(t, map[string]string{"en": "CC BY 4.0: 2", "de": ""}, r.Licenses)
	assert.Equal(t, map[string]string{"en": "", "de": ""}, r.Access)

	assert.Equal(t, int64(4), pub.txID)
	assert.Len(t, pub.rollups, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSerializationFailureRetried(t *testing.T) {
	e, mock := newMockEngine(t)

	expectBegin(mock)
	mock.ExpectQuery(queryAutoCreated).WithArgs(int64(8), sqlmock.AnyArg()).
		WillReturnError(&pq.Error{Code: "40001", Message: "could not serialize access"})
	mock.ExpectRollback()

	expectBegin(mock)
	expectCleanRules(mock, 8)
	expectNoAffected(mock)
	mock.ExpectCommit()

	res, err := e.OnTransactionCommit(context.Background(), MethodCommit, 8, []int64{1})
	require.NoError(t, err)
	assert.Empty(t, res.Rollups)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockTimeoutExhaustsRetries(t *testing.T) {
	e, mock := newMockEngine(t, WithRetry(retry.Config{
		MaxAttempts:  2,
		InitialDelay: time.Millisecond,
		MaxDelay:     time.Millisecond,
	}))
	for i := 0; i < 2; i++ {
		expectBegin(mock)
		mock.ExpectQuery(queryAutoCreated).WithArgs(int64(8), sqlmock.AnyArg()).
			WillReturnError(&pq.Error{Code: "55P03", Message: "canceling statement due to lock timeout"})
		mock.ExpectRollback()
	}

	_, err := e.OnTransactionCommit(context.Background(), MethodCommit, 8, []int64{1})
	require.Error(t, err)
	assert.True(t, rules.IsTransient(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOperationalErrorNotRetried(t *testing.T) {
	e, mock := newMockEngine(t)
	expectBegin(mock)
	mock.ExpectQuery(queryAutoCreated).WithArgs(int64(8), sqlmock.AnyArg()).
		WillReturnError(errors.New("relation \"resources\" does not exist"))
	mock.ExpectRollback()

	_, err := e.OnTransactionCommit(context.Background(), MethodCommit, 8, []int64{1})
	require.Error(t, err)
	assert.False(t, rules.IsTransient(err))
	assert.False(t, rules.IsFailure(err))
	assert.Contains(t, err.Error(), "rule check-auto-created-resources")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		transient bool
	}{
		{"serialization", &pq.Error{Code: "40001"}, true},
		{"deadlock", &pq.Error{Code: "40P01"}, true},
		{"lock timeout", &pq.Error{Code: "55P03"}, true},
		{"unique violation", &pq.Error{Code: "23505"}, false},
		{"bad conn", driver.ErrBadConn, true},
		{"wrapped", errors.Join(errors.New("x"), sql.ErrConnDone), false},
		{"failure", rules.Failf("nope"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.transient, rules.IsTransient(classify(tt.err)))
		})
	}
}
