// Package postgres implements store.DocDB on PostgreSQL using pgx.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema.sql
var schemaSQL string

const uniqueViolation = "23505"

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a DocDB backed by a pgx pool or an open transaction.
type DB struct {
	q    querier
	pool *pgxpool.Pool
}

var _ store.DocDB = (*DB)(nil)

// Open connects to databaseURL and applies the schema.
func Open(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &DB{q: pool, pool: pool}, nil
}

// Close releases the pool.
func (db *DB) Close() {
	if db.pool != nil {
		db.pool.Close()
	}
}

func (db *DB) Ping(ctx context.Context) error {
	if db.pool == nil {
		return nil
	}
	return db.pool.Ping(ctx)
}

func (db *DB) InTx(ctx context.Context, fn func(store.DocDB) error) error {
	// Begin on a pgx.Tx opens a savepoint, so nesting is safe.
	return pgx.BeginFunc(ctx, db.q, func(tx pgx.Tx) error {
		return fn(&DB{q: tx})
	})
}

func ident(table string) string { return pgx.Identifier{table}.Sanitize() }

func (db *DB) Get(ctx context.Context, table string, id uuid.UUID) ([]byte, error) {
	var raw []byte
	err := db.q.QueryRow(ctx, "SELECT doc::text FROM "+ident(table)+" WHERE id = $1", id).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNoDocument
	}
	if err != nil {
		return nil, err
	}
	return raw, nil
}

func (db *DB) Put(ctx context.Context, table string, id uuid.UUID, doc []byte) error {
	_, err := db.q.Exec(ctx,
		"INSERT INTO "+ident(table)+` (id, doc) VALUES ($1, $2::jsonb)
		 ON CONFLICT (id) DO UPDATE SET doc = EXCLUDED.doc, updated_at = now()`,
		id, string(doc))
	return mapError(table, err)
}

func (db *DB) Find(ctx context.Context, table string, q store.Query) ([][]byte, error) {
	b := &builder{}
	sql := "SELECT doc::text FROM " + ident(table) + b.where(q.Where)
	if q.OrderBy != "" {
		dir := " ASC NULLS FIRST"
		if q.Desc {
			dir = " DESC NULLS LAST"
		}
		sql += " ORDER BY doc #> " + b.arg(store.Path(q.OrderBy)) + dir + ", created_at"
	} else {
		sql += " ORDER BY created_at"
	}
	if q.Limit > 0 {
		sql += " LIMIT " + b.arg(q.Limit)
	}
	if q.Offset > 0 {
		sql += " OFFSET " + b.arg(q.Offset)
	}

	rows, err := db.q.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out [][]byte
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		out = append(out, raw)
	}
	return out, rows.Err()
}

func (db *DB) Count(ctx context.Context, table string, where ...store.Cond) (int, error) {
	b := &builder{}
	var n int
	err := db.q.QueryRow(ctx, "SELECT count(*) FROM "+ident(table)+b.where(where), b.args...).Scan(&n)
	return n, err
}

func (db *DB) Delete(ctx context.Context, table string, where ...store.Cond) (int, error) {
	b := &builder{}
	tag, err := db.q.Exec(ctx, "DELETE FROM "+ident(table)+b.where(where), b.args...)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}

func (db *DB) SetFields(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error {
	patch, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	tag, err := db.q.Exec(ctx,
		"UPDATE "+ident(table)+" SET doc = doc || $2::jsonb, updated_at = now() WHERE id = $1",
		id, string(patch))
	if err != nil {
		return mapError(table, err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNoDocument
	}
	return nil
}

func (db *DB) SetFieldIfEmpty(ctx context.Context, table string, id uuid.UUID, field, value string) (bool, error) {
	path := store.Path(field)
	tag, err := db.q.Exec(ctx,
		"UPDATE "+ident(table)+` SET doc = jsonb_set(doc, $3::text[], to_jsonb($2::text)), updated_at = now()
		 WHERE id = $1 AND COALESCE(doc #>> $3::text[], '') = ''`,
		id, value, path)
	if err != nil {
		return false, mapError(table, err)
	}
	if tag.RowsAffected() == 1 {
		return true, nil
	}
	if _, err := db.Get(ctx, table, id); err != nil {
		return false, err
	}
	return false, nil
}

func mapError(table string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return &store.DuplicateError{Table: table, Key: pgErr.ConstraintName}
	}
	return err
}

// builder renders store.Cond trees into SQL with positional arguments.
type builder struct {
	args []any
}

func (b *builder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *builder) where(conds []store.Cond) string {
	if len(conds) == 0 {
		return ""
	}
	parts := make([]string, 0, len(conds))
	for _, c := range conds {
		parts = append(parts, b.cond(c))
	}
	return " WHERE " + strings.Join(parts, " AND ")
}

func (b *builder) text(field string) string {
	return "(doc #>> " + b.arg(store.Path(field)) + "::text[])"
}

func (b *builder) cond(c store.Cond) string {
	switch c.Op {
	case store.OpEq:
		return b.text(c.Field) + " = " + b.arg(c.Values[0])
	case store.OpIn:
		if len(c.Values) == 0 {
			return "false"
		}
		return b.text(c.Field) + " = ANY(" + b.arg(c.Values) + "::text[])"
	case store.OpContains:
		return "strpos(lower(" + b.text(c.Field) + "), lower(" + b.arg(c.Values[0]) + "::text)) > 0"
	case store.OpHasPrefix:
		return "starts_with(" + b.text(c.Field) + ", " + b.arg(c.Values[0]) + "::text)"
	case store.OpGte:
		return b.text(c.Field) + ` COLLATE "C" >= ` + b.arg(c.Values[0])
	case store.OpLt:
		return b.text(c.Field) + ` COLLATE "C" < ` + b.arg(c.Values[0])
	case store.OpIsNull:
		p := b.arg(store.Path(c.Field))
		return fmt.Sprintf("(doc #> %[1]s::text[] IS NULL OR jsonb_typeof(doc #> %[1]s::text[]) = 'null')", p)
	case store.OpHasElement:
		return "COALESCE(doc #> " + b.arg(store.Path(c.Field)) + "::text[] @> jsonb_build_array(" + b.arg(c.Values[0]) + "::text), false)"
	case store.OpOr:
		if len(c.Sub) == 0 {
			return "false"
		}
		parts := make([]string, 0, len(c.Sub))
		for _, sub := range c.Sub {
			parts = append(parts, "COALESCE("+b.cond(sub)+", false)")
		}
		return "(" + strings.Join(parts, " OR ") + ")"
	case store.OpNot:
		return "NOT COALESCE(" + b.cond(c.Sub[0]) + ", false)"
	}
	return "false"
}

// ============================================================
// Jobs
// ============================================================

const jobColumns = `id, kind, COALESCE(dedupe_key, ''), payload::text, status, attempts, max_attempts,
	run_at, locked_at, last_error, COALESCE(result::text, ''), created_at, updated_at`

func scanJob(row pgx.Row) (*domain.Job, error) {
	var (
		j               domain.Job
		payload, result string
		kind, status    string
	)
	err := row.Scan(&j.ID, &kind, &j.DedupeKey, &payload, &status, &j.Attempts, &j.MaxAttempts,
		&j.RunAt, &j.LockedAt, &j.LastError, &result, &j.CreatedAt, &j.UpdatedAt)
	if err != nil {
		return nil, err
	}
	j.Kind = domain.JobKind(kind)
	j.Status = domain.JobStatus(status)
	j.Payload = json.RawMessage(payload)
	if result != "" {
		j.Result = json.RawMessage(result)
	}
	return &j, nil
}

func (db *DB) EnqueueJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	id := job.ID
	if id == uuid.Nil {
		id = uuid.New()
	}
	runAt := job.RunAt
	if runAt.IsZero() {
		runAt = time.Now()
	}
	row := db.q.QueryRow(ctx, `
		INSERT INTO jobs (id, kind, dedupe_key, payload, status, max_attempts, run_at)
		VALUES ($1, $2, NULLIF($3, ''), $4::jsonb, 'pending', $5, $6)
		ON CONFLICT (dedupe_key) WHERE status = 'pending' AND dedupe_key IS NOT NULL
		DO UPDATE SET payload = EXCLUDED.payload,
		              run_at = LEAST(jobs.run_at, EXCLUDED.run_at),
		              updated_at = now()
		RETURNING `+jobColumns,
		id, string(job.Kind), job.DedupeKey, string(job.Payload), job.MaxAttempts, runAt)
	return scanJob(row)
}

func (db *DB) ClaimJobs(ctx context.Context, limit int, now time.Time) ([]domain.Job, error) {
	rows, err := db.q.Query(ctx, `
		UPDATE jobs SET status = 'in_flight', attempts = attempts + 1, locked_at = $1, updated_at = now()
		WHERE id IN (
			SELECT j.id FROM jobs j
			WHERE j.status = 'pending' AND j.run_at <= $1
			  AND (j.dedupe_key IS NULL OR NOT EXISTS (
			      SELECT 1 FROM jobs f WHERE f.status = 'in_flight' AND f.dedupe_key = j.dedupe_key))
			ORDER BY j.run_at
			LIMIT $2
			FOR UPDATE SKIP LOCKED)
		RETURNING `+jobColumns,
		now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []domain.Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *j)
	}
	return jobs, rows.Err()
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result []byte) error {
	var res *string
	if result != nil {
		s := string(result)
		res = &s
	}
	return db.setJob(ctx, `UPDATE jobs SET status = 'done', locked_at = NULL, result = $2::jsonb, updated_at = now()
		WHERE id = $1`, id, res)
}

func (db *DB) RetryJob(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	err := db.setJob(ctx, `UPDATE jobs SET status = 'pending', run_at = $2, last_error = $3, locked_at = NULL, updated_at = now()
		WHERE id = $1`, id, runAt, lastErr)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		// a newer pending job carries the same work
		return db.setJob(ctx, `UPDATE jobs SET status = 'done', last_error = $2, locked_at = NULL, updated_at = now()
			WHERE id = $1`, id, lastErr)
	}
	return err
}

func (db *DB) KillJob(ctx context.Context, id uuid.UUID, lastErr string) error {
	return db.setJob(ctx, `UPDATE jobs SET status = 'dead', last_error = $2, locked_at = NULL, updated_at = now()
		WHERE id = $1`, id, lastErr)
}

func (db *DB) setJob(ctx context.Context, sql string, id uuid.UUID, args ...any) error {
	tag, err := db.q.Exec(ctx, sql, append([]any{id}, args...)...)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.ErrNotFound{Resource: "job", ID: id.String()}
	}
	return nil
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	j, err := scanJob(db.q.QueryRow(ctx, "SELECT "+jobColumns+" FROM jobs WHERE id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, &domain.ErrNotFound{Resource: "job", ID: id.String()}
	}
	return j, err
}

func (db *DB) RequeueStaleJobs(ctx context.Context, cutoff time.Time) (int, error) {
	// Skip jobs whose key already has a pending successor; they are left
	// for the successor to supersede.
	tag, err := db.q.Exec(ctx, `
		UPDATE jobs j SET status = 'pending', locked_at = NULL, updated_at = now()
		WHERE j.status = 'in_flight' AND j.locked_at < $1
		  AND (j.dedupe_key IS NULL OR NOT EXISTS (
		      SELECT 1 FROM jobs p WHERE p.status = 'pending' AND p.dedupe_key = j.dedupe_key))`,
		cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
