//go:build cgo

package evidence

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	kuzu "github.com/kuzudb/go-kuzu"
)

// KuzuLedger implements Ledger on a KuzuDB graph so the claim/evidence
// provenance survives across sessions and can be traversed as a graph.
// Requires CGO because the go-kuzu driver wraps KuzuDB's C library.
type KuzuLedger struct {
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuLedger satisfies Ledger.
var _ Ledger = (*KuzuLedger)(nil)

// NewKuzuLedger creates a KuzuLedger backed by an in-memory KuzuDB instance.
func NewKuzuLedger() (*KuzuLedger, error) {
	return openKuzu(":memory:")
}

// NewKuzuFileLedger creates a KuzuLedger persisted at dbPath. KuzuDB creates
// the leaf directory itself for new databases.
func NewKuzuFileLedger(dbPath string) (*KuzuLedger, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzu(dbPath)
}

func openKuzu(path string) (*KuzuLedger, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	l := &KuzuLedger{db: db, conn: conn}
	if err := l.initSchema(); err != nil {
		l.Close()
		return nil, err
	}
	return l, nil
}

// Close releases the KuzuDB connection and database.
func (l *KuzuLedger) Close() error {
	if l.conn != nil {
		l.conn.Close()
	}
	if l.db != nil {
		l.db.Close()
	}
	return nil
}

// ddlStatements defines the provenance graph schema. Node tables must
// precede relationship tables.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Claim(
		text STRING,
		namespace STRING,
		PRIMARY KEY(text)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Evidence(
		id STRING,
		kind STRING,
		source_task STRING,
		artifact_ref STRING,
		recorded_at INT64,
		seq INT64,
		PRIMARY KEY(id)
	)`,
	`CREATE REL TABLE IF NOT EXISTS SUPPORTS(FROM Evidence TO Claim)`,
}

func (l *KuzuLedger) initSchema() error {
	for _, stmt := range ddlStatements {
		res, err := l.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// Append stores a record, assigning a UUID when the record has none.
func (l *KuzuLedger) Append(ctx context.Context, rec Record) (string, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if existing, err := l.Get(ctx, rec.ID); err != nil {
		return "", err
	} else if existing != nil {
		return "", fmt.Errorf("evidence: duplicate record ID %q", rec.ID)
	}
	if rec.RecordedAt.IsZero() {
		rec.RecordedAt = time.Now()
	}

	n, err := l.Len(ctx)
	if err != nil {
		return "", err
	}

	if err := l.exec(
		"MERGE (c:Claim {text: $claim}) ON CREATE SET c.namespace = $ns",
		map[string]any{"claim": rec.Claim, "ns": rec.Namespace},
	); err != nil {
		return "", err
	}
	if err := l.exec(
		`CREATE (e:Evidence {
			id: $id,
			kind: $kind,
			source_task: $task,
			artifact_ref: $ref,
			recorded_at: $at,
			seq: $seq
		})`,
		map[string]any{
			"id":   rec.ID,
			"kind": string(rec.Kind),
			"task": rec.SourceTask,
			"ref":  rec.ArtifactRef,
			"at":   rec.RecordedAt.UnixNano(),
			"seq":  int64(n),
		},
	); err != nil {
		return "", err
	}
	if err := l.exec(
		`MATCH (e:Evidence {id: $id}), (c:Claim {text: $claim})
		 CREATE (e)-[:SUPPORTS]->(c)`,
		map[string]any{"id": rec.ID, "claim": rec.Claim},
	); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Get returns the record with the given ID, or nil if absent.
func (l *KuzuLedger) Get(_ context.Context, id string) (*Record, error) {
	rows, err := l.query(
		`MATCH (e:Evidence {id: $id})-[:SUPPORTS]->(c:Claim)
		 RETURN e.id, c.text, c.namespace, e.source_task, e.artifact_ref, e.kind, e.recorded_at`,
		map[string]any{"id": id},
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		// Evidence created before its SUPPORTS edge commits is not
		// observable; treat as absent.
		return nil, nil
	}
	rec := rowToRecord(rows[0])
	return &rec, nil
}

// ByClaim returns all records supporting a claim, oldest first.
func (l *KuzuLedger) ByClaim(_ context.Context, claim string) ([]Record, error) {
	return l.queryRecords(
		`MATCH (e:Evidence)-[:SUPPORTS]->(c:Claim {text: $v})
		 RETURN e.id, c.text, c.namespace, e.source_task, e.artifact_ref, e.kind, e.recorded_at
		 ORDER BY e.seq`,
		map[string]any{"v": claim},
	)
}

// ByNamespace returns all records in a key-namespace, oldest first.
func (l *KuzuLedger) ByNamespace(_ context.Context, namespace string) ([]Record, error) {
	return l.queryRecords(
		`MATCH (e:Evidence)-[:SUPPORTS]->(c:Claim {namespace: $v})
		 RETURN e.id, c.text, c.namespace, e.source_task, e.artifact_ref, e.kind, e.recorded_at
		 ORDER BY e.seq`,
		map[string]any{"v": namespace},
	)
}

// ByTask returns all records contributed by a task, oldest first.
func (l *KuzuLedger) ByTask(_ context.Context, task string) ([]Record, error) {
	return l.queryRecords(
		`MATCH (e:Evidence {source_task: $v})-[:SUPPORTS]->(c:Claim)
		 RETURN e.id, c.text, c.namespace, e.source_task, e.artifact_ref, e.kind, e.recorded_at
		 ORDER BY e.seq`,
		map[string]any{"v": task},
	)
}

// Len returns the total number of evidence records.
func (l *KuzuLedger) Len(_ context.Context) (int, error) {
	rows, err := l.query("MATCH (e:Evidence) RETURN count(e)", nil)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// ---------- Cypher helpers ----------

func (l *KuzuLedger) queryRecords(cypher string, params map[string]any) ([]Record, error) {
	rows, err := l.query(cypher, params)
	if err != nil {
		return nil, err
	}
	out := make([]Record, 0, len(rows))
	for _, r := range rows {
		out = append(out, rowToRecord(r))
	}
	return out, nil
}

func rowToRecord(r []any) Record {
	return Record{
		ID:          toString(r[0]),
		Claim:       toString(r[1]),
		Namespace:   toString(r[2]),
		SourceTask:  toString(r[3]),
		ArtifactRef: toString(r[4]),
		Kind:        Kind(toString(r[5])),
		RecordedAt:  time.Unix(0, toInt64(r[6])),
	}
}

// exec runs a parameterized Cypher statement, discarding the result.
func (l *KuzuLedger) exec(cypher string, params map[string]any) error {
	stmt, err := l.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := l.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a parameterized Cypher statement and collects all result rows.
// Each row is a []any slice with values in column order.
func (l *KuzuLedger) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = l.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = l.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = l.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

func toString(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	return int(toInt64(v))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}
