package aggregate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Resource lifecycle states.
const (
	StateActive    = "active"
	StateTombstone = "tombstone"
	StateDeleted   = "deleted"
)

// Open connects to the repository database.
func Open(dsn string, maxOpenConns int) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxOpenConns > 0 {
		db.SetMaxOpenConns(maxOpenConns)
	}
	return db, nil
}

// Store runs the aggregation statements inside one administrative
// transaction.
type Store struct {
	tx *sql.Tx
}

// NewStore wraps tx.
func NewStore(tx *sql.Tx) *Store {
	return &Store{tx: tx}
}

// SetLockTimeout bounds lock waits for the rest of the transaction.
func (s *Store) SetLockTimeout(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	// SET does not accept bind parameters.
	_, err := s.tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", d.Milliseconds()))
	return err
}

// Labeled is a resource id with its display identifier.
type Labeled struct {
	ID    int64
	Label string
}

const queryAutoCreated = `
SELECT r.id, COALESCE(MIN(i.ids), r.id::text)
FROM resources r
LEFT JOIN identifiers i ON i.id = r.id
WHERE r.transaction_id = $1 AND r.id = ANY($2) AND r.state = 'active'
  AND NOT EXISTS (SELECT 1 FROM metadata m WHERE m.id = r.id)
  AND NOT EXISTS (SELECT 1 FROM relations l WHERE l.id = r.id)
GROUP BY r.id
ORDER BY r.id`

// AutoCreated returns resources created by the transaction that carry no
// metadata at all.
func (s *Store) AutoCreated(ctx context.Context, txID int64, ids []int64) ([]Labeled, error) {
	return s.labeled(ctx, queryAutoCreated, txID, pq.Array(ids))
}

const queryEmptyCollections = `
SELECT r.id, COALESCE(MIN(i.ids), r.id::text)
FROM resources r
LEFT JOIN identifiers i ON i.id = r.id
WHERE r.transaction_id = $1 AND r.id = ANY($2) AND r.state = 'active'
  AND EXISTS (SELECT 1 FROM metadata t WHERE t.id = r.id AND t.property = $3 AND t.value = ANY($4))
  AND NOT EXISTS (
    SELECT 1 FROM relations c
    JOIN resources cr ON cr.id = c.id AND cr.state = 'active'
    WHERE c.target_id = r.id AND c.property = $5)
GROUP BY r.id
ORDER BY r.id`

// EmptyCollections returns collections created by the transaction that
// have no active child.
func (s *Store) EmptyCollections(ctx context.Context, txID int64, ids []int64, typePred string, classes []string, parentPred string) ([]Labeled, error) {
	return s.labeled(ctx, queryEmptyCollections, txID, pq.Array(ids), typePred, pq.Array(classes), parentPred)
}

func (s *Store) labeled(ctx context.Context, query string, args ...any) ([]Labeled, error) {
	rows, err := s.tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Labeled
	for rows.Next() {
		var l Labeled
		if err := rows.Scan(&l.ID, &l.Label); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

// Edge is one relation between two resources.
type Edge struct {
	From, To int64
}

const queryChain = `
WITH RECURSIVE chain(id, target_id) AS (
  SELECT id, target_id FROM relations WHERE property = $1 AND id = ANY($2)
  UNION
  SELECT r.id, r.target_id FROM relations r JOIN chain c ON r.id = c.target_id WHERE r.property = $1
)
SELECT id, target_id FROM chain ORDER BY id, target_id`

// Chain returns every edge of property reachable from ids.
func (s *Store) Chain(ctx context.Context, property string, ids []int64) ([]Edge, error) {
	rows, err := s.tx.QueryContext(ctx, queryChain, property, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Edge
	for rows.Next() {
		var e Edge
		if err := rows.Scan(&e.From, &e.To); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Ancestors are resolved over the union of current relations and the
// relations the transaction removed, so collections a resource moved out
// of are recomputed together with those it moved into.
const createAffected = `
CREATE TEMP TABLE affected_collections (id bigint PRIMARY KEY) ON COMMIT DROP`

const insertAffected = `
WITH RECURSIVE seeds(id) AS (
  SELECT unnest($1::bigint[])
),
edges(id, target_id) AS (
  SELECT id, target_id FROM relations WHERE property = $2
  UNION
  SELECT id, target_id FROM relations_log WHERE property = $2 AND transaction_id = $3
),
up(id) AS (
  SELECT id FROM seeds
  UNION
  SELECT e.target_id FROM edges e JOIN up u ON e.id = u.id
)
INSERT INTO affected_collections (id)
SELECT DISTINCT u.id FROM up u
JOIN resources r ON r.id = u.id AND r.state = 'active'
WHERE EXISTS (SELECT 1 FROM metadata t WHERE t.id = u.id AND t.property = $4 AND t.value = ANY($5))
ON CONFLICT DO NOTHING`

const createMembers = `
CREATE TEMP TABLE collection_members (collection_id bigint, id bigint) ON COMMIT DROP`

const insertMembers = `
WITH RECURSIVE down(collection_id, id) AS (
  SELECT id, id FROM affected_collections
  UNION
  SELECT d.collection_id, r.id FROM relations r JOIN down d ON r.target_id = d.id WHERE r.property = $1
)
INSERT INTO collection_members (collection_id, id)
SELECT collection_id, id FROM down`

// Affected materializes the affected collections and their descendants.
// It returns the number of affected collections.
func (s *Store) Affected(ctx context.Context, txID int64, ids []int64, parentPred, typePred string, classes []string) (int64, error) {
	if _, err := s.tx.ExecContext(ctx, createAffected); err != nil {
		return 0, fmt.Errorf("create affected table: %w", err)
	}
	res, err := s.tx.ExecContext(ctx, insertAffected, pq.Array(ids), parentPred, txID, typePred, pq.Array(classes))
	if err != nil {
		return 0, fmt.Errorf("resolve affected collections: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	if _, err := s.tx.ExecContext(ctx, createMembers); err != nil {
		return 0, fmt.Errorf("create members table: %w", err)
	}
	if _, err := s.tx.ExecContext(ctx, insertMembers, parentPred); err != nil {
		return 0, fmt.Errorf("materialize descendants: %w", err)
	}
	return n, nil
}

const queryCounts = `
SELECT a.id,
  COALESCE((SELECT SUM(m.value_n)
     FROM collection_members cm
     JOIN resources r ON r.id = cm.id AND r.state = 'active'
     JOIN metadata m ON m.id = cm.id AND m.property = $1
     WHERE cm.collection_id = a.id AND cm.id <> a.id), 0)::bigint,
  (SELECT COUNT(DISTINCT cm.id)
     FROM collection_members cm
     JOIN resources r ON r.id = cm.id AND r.state = 'active'
     WHERE cm.collection_id = a.id AND cm.id <> a.id
       AND NOT EXISTS (SELECT 1 FROM metadata t WHERE t.id = cm.id AND t.property = $2 AND t.value = ANY($3))),
  (SELECT COUNT(DISTINCT cm.id)
     FROM collection_members cm
     JOIN resources r ON r.id = cm.id AND r.state = 'active'
     WHERE cm.collection_id = a.id AND cm.id <> a.id),
  (SELECT COUNT(DISTINCT cm.id)
     FROM collection_members cm
     JOIN resources r ON r.id = cm.id AND r.state = 'active'
     WHERE cm.collection_id = a.id AND cm.id <> a.id
       AND EXISTS (SELECT 1 FROM metadata t WHERE t.id = cm.id AND t.property = $2 AND t.value = ANY($4))),
  COALESCE((SELECT MIN(i.ids) FROM identifiers i WHERE i.id = a.id), a.id::text)
FROM affected_collections a
ORDER BY a.id`

// Counts computes size, count and the single-binary flag of every affected
// collection.
func (s *Store) Counts(ctx context.Context, sizePred, typePred string, collectionClasses, binaryClasses []string) ([]Rollup, error) {
	rows, err := s.tx.QueryContext(ctx, queryCounts, sizePred, typePred, pq.Array(collectionClasses), pq.Array(binaryClasses))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Rollup
	for rows.Next() {
		var r Rollup
		var members, binaries int64
		if err := rows.Scan(&r.CollectionID, &r.CumulativeSize, &r.CumulativeCount, &members, &binaries, &r.Identifier); err != nil {
			return nil, err
		}
		r.SingleBinary = members == 1 && binaries == 1
		out = append(out, r)
	}
	return out, rows.Err()
}

const deleteProperty = `
DELETE FROM metadata WHERE id = ANY($1) AND property = $2`

const insertNumbers = `
INSERT INTO metadata (id, property, type, lang, value_n, value)
SELECT u.id, $2::text, $3::text, '', u.n, u.n::text
FROM unnest($1::bigint[], $4::bigint[]) AS u(id, n)`

// ReplaceNumbers overwrites property on every collection with the given
// integer values.
func (s *Store) ReplaceNumbers(ctx context.Context, property, datatype string, ids, values []int64) error {
	if _, err := s.tx.ExecContext(ctx, deleteProperty, pq.Array(ids), property); err != nil {
		return fmt.Errorf("delete %s: %w", property, err)
	}
	if _, err := s.tx.ExecContext(ctx, insertNumbers, pq.Array(ids), property, datatype, pq.Array(values)); err != nil {
		return fmt.Errorf("insert %s: %w", property, err)
	}
	return nil
}

// queryCategories takes one label per target and language, preferring the
// earliest predicate in $2.
const queryCategories = `
WITH labels AS (
  SELECT DISTINCT ON (l.id, COALESCE(l.lang, '')) l.id, COALESCE(l.lang, '') AS lang, l.value
  FROM metadata l
  WHERE l.property = ANY($2::text[])
    AND l.id IN (SELECT rel.target_id FROM relations rel WHERE rel.property = $1)
  ORDER BY l.id, COALESCE(l.lang, ''), array_position($2::text[], l.property), l.value
)
SELECT cm.collection_id, lb.lang, lb.value, COUNT(DISTINCT cm.id)
FROM collection_members cm
JOIN resources r ON r.id = cm.id AND r.state = 'active'
JOIN relations rel ON rel.id = cm.id AND rel.property = $1
JOIN labels lb ON lb.id = rel.target_id
WHERE cm.id <> cm.collection_id
GROUP BY cm.collection_id, lb.lang, lb.value
ORDER BY cm.collection_id`

// CategoryCount is one (collection, language, value) frequency.
type CategoryCount struct {
	CollectionID int64
	Lang         string
	Value        string
	Count        int
}

// Categories counts the labels of the resources descendants point to via
// property.
func (s *Store) Categories(ctx context.Context, property string, labelPreds []string) ([]CategoryCount, error) {
	rows, err := s.tx.QueryContext(ctx, queryCategories, property, pq.Array(labelPreds))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []CategoryCount
	for rows.Next() {
		var c CategoryCount
		if err := rows.Scan(&c.CollectionID, &c.Lang, &c.Value, &c.Count); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const insertStrings = `
INSERT INTO metadata (id, property, type, lang, value)
SELECT u.id, $2::text, $3::text, u.lang, u.value
FROM unnest($1::bigint[], $4::text[], $5::text[]) AS u(id, lang, value)`

// ReplaceStrings overwrites property on every collection with the given
// language-tagged literals. ids, langs and values are parallel columns.
func (s *Store) ReplaceStrings(ctx context.Context, property, datatype string, collections, ids []int64, langs, values []string) error {
	if _, err := s.tx.ExecContext(ctx, deleteProperty, pq.Array(collections), property); err != nil {
		return fmt.Errorf("delete %s: %w", property, err)
	}
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.tx.ExecContext(ctx, insertStrings, pq.Array(ids), property, datatype, pq.Array(langs), pq.Array(values)); err != nil {
		return fmt.Errorf("insert %s: %w", property, err)
	}
	return nil
}
