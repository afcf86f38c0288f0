// Package memstore is an in-memory store.DocDB used by tests and by
// `--store=memory` local runs. Transactions hold a global lock and restore
// a snapshot on error.
package memstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/homeward/backoffice-go/internal/domain"
	"github.com/homeward/backoffice-go/internal/store"

	"github.com/google/uuid"
)

type state struct {
	tables map[string]map[uuid.UUID][]byte
	jobs   map[uuid.UUID]domain.Job
	seq    map[uuid.UUID]int64 // insertion order for stable scans
	next   int64
	defs   map[string]store.TableDef
}

func newState() *state {
	defs := make(map[string]store.TableDef, len(store.Tables))
	for _, d := range store.Tables {
		defs[d.Name] = d
	}
	return &state{
		tables: map[string]map[uuid.UUID][]byte{},
		jobs:   map[uuid.UUID]domain.Job{},
		seq:    map[uuid.UUID]int64{},
		defs:   defs,
	}
}

func (s *state) clone() *state {
	c := &state{
		tables: make(map[string]map[uuid.UUID][]byte, len(s.tables)),
		jobs:   make(map[uuid.UUID]domain.Job, len(s.jobs)),
		seq:    make(map[uuid.UUID]int64, len(s.seq)),
		next:   s.next,
		defs:   s.defs,
	}
	for name, rows := range s.tables {
		t := make(map[uuid.UUID][]byte, len(rows))
		for id, raw := range rows {
			t[id] = raw
		}
		c.tables[name] = t
	}
	for id, j := range s.jobs {
		c.jobs[id] = j
	}
	for id, n := range s.seq {
		c.seq[id] = n
	}
	return c
}

// DB is the locking entry point.
type DB struct {
	mu sync.Mutex
	st *state
}

// New creates an empty in-memory DocDB.
func New() *DB {
	return &DB{st: newState()}
}

var _ store.DocDB = (*DB)(nil)

// ops runs the unlocked operations; DB wraps them with the mutex and tx
// uses them directly while InTx holds it.
type ops struct{ st *state }

func (db *DB) do(fn func(o ops) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return fn(ops{db.st})
}

func (db *DB) Get(ctx context.Context, table string, id uuid.UUID) (raw []byte, err error) {
	err = db.do(func(o ops) error { raw, err = o.get(table, id); return err })
	return raw, err
}

func (db *DB) Put(ctx context.Context, table string, id uuid.UUID, doc []byte) error {
	return db.do(func(o ops) error { return o.put(table, id, doc) })
}

func (db *DB) Find(ctx context.Context, table string, q store.Query) (rows [][]byte, err error) {
	err = db.do(func(o ops) error { rows, err = o.find(table, q); return err })
	return rows, err
}

func (db *DB) Count(ctx context.Context, table string, where ...store.Cond) (n int, err error) {
	err = db.do(func(o ops) error {
		rows, err := o.find(table, store.Query{Where: where})
		n = len(rows)
		return err
	})
	return n, err
}

func (db *DB) Delete(ctx context.Context, table string, where ...store.Cond) (n int, err error) {
	err = db.do(func(o ops) error { n, err = o.delete(table, where); return err })
	return n, err
}

func (db *DB) SetFields(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error {
	return db.do(func(o ops) error { return o.setFields(table, id, fields) })
}

func (db *DB) SetFieldIfEmpty(ctx context.Context, table string, id uuid.UUID, field, value string) (ok bool, err error) {
	err = db.do(func(o ops) error { ok, err = o.setFieldIfEmpty(table, id, field, value); return err })
	return ok, err
}

func (db *DB) Ping(ctx context.Context) error { return nil }

func (db *DB) InTx(ctx context.Context, fn func(store.DocDB) error) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	snapshot := db.st.clone()
	if err := fn(&tx{ops{db.st}}); err != nil {
		db.st = snapshot
		return err
	}
	return nil
}

func (db *DB) EnqueueJob(ctx context.Context, job *domain.Job) (out *domain.Job, err error) {
	err = db.do(func(o ops) error { out, err = o.enqueue(job); return err })
	return out, err
}

func (db *DB) ClaimJobs(ctx context.Context, limit int, now time.Time) (jobs []domain.Job, err error) {
	err = db.do(func(o ops) error { jobs = o.claim(limit, now); return nil })
	return jobs, err
}

func (db *DB) CompleteJob(ctx context.Context, id uuid.UUID, result []byte) error {
	return db.do(func(o ops) error { return o.finish(id, domain.JobDone, result, "") })
}

func (db *DB) RetryJob(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	return db.do(func(o ops) error { return o.retry(id, runAt, lastErr) })
}

func (db *DB) KillJob(ctx context.Context, id uuid.UUID, lastErr string) error {
	return db.do(func(o ops) error { return o.finish(id, domain.JobDead, nil, lastErr) })
}

func (db *DB) GetJob(ctx context.Context, id uuid.UUID) (job *domain.Job, err error) {
	err = db.do(func(o ops) error { job, err = o.getJob(id); return err })
	return job, err
}

func (db *DB) RequeueStaleJobs(ctx context.Context, cutoff time.Time) (n int, err error) {
	err = db.do(func(o ops) error { n = o.requeueStale(cutoff); return nil })
	return n, err
}

// Jobs returns a copy of every job (tests).
func (db *DB) Jobs() []domain.Job {
	db.mu.Lock()
	defer db.mu.Unlock()
	out := make([]domain.Job, 0, len(db.st.jobs))
	for _, j := range db.st.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].CreatedAt.Before(out[k].CreatedAt) })
	return out
}

// tx is the DocDB handed to InTx callbacks; the lock is already held.
type tx struct{ o ops }

func (t *tx) Get(ctx context.Context, table string, id uuid.UUID) ([]byte, error) {
	return t.o.get(table, id)
}
func (t *tx) Put(ctx context.Context, table string, id uuid.UUID, doc []byte) error {
	return t.o.put(table, id, doc)
}
func (t *tx) Find(ctx context.Context, table string, q store.Query) ([][]byte, error) {
	return t.o.find(table, q)
}
func (t *tx) Count(ctx context.Context, table string, where ...store.Cond) (int, error) {
	rows, err := t.o.find(table, store.Query{Where: where})
	return len(rows), err
}
func (t *tx) Delete(ctx context.Context, table string, where ...store.Cond) (int, error) {
	return t.o.delete(table, where)
}
func (t *tx) SetFields(ctx context.Context, table string, id uuid.UUID, fields map[string]any) error {
	return t.o.setFields(table, id, fields)
}
func (t *tx) SetFieldIfEmpty(ctx context.Context, table string, id uuid.UUID, field, value string) (bool, error) {
	return t.o.setFieldIfEmpty(table, id, field, value)
}

// InTx nests: a failing inner callback restores the state it started from.
func (t *tx) InTx(ctx context.Context, fn func(store.DocDB) error) error {
	snapshot := t.o.st.clone()
	if err := fn(t); err != nil {
		*t.o.st = *snapshot
		return err
	}
	return nil
}

func (t *tx) Ping(ctx context.Context) error { return nil }
func (t *tx) EnqueueJob(ctx context.Context, job *domain.Job) (*domain.Job, error) {
	return t.o.enqueue(job)
}
func (t *tx) ClaimJobs(ctx context.Context, limit int, now time.Time) ([]domain.Job, error) {
	return t.o.claim(limit, now), nil
}
func (t *tx) CompleteJob(ctx context.Context, id uuid.UUID, result []byte) error {
	return t.o.finish(id, domain.JobDone, result, "")
}
func (t *tx) RetryJob(ctx context.Context, id uuid.UUID, runAt time.Time, lastErr string) error {
	return t.o.retry(id, runAt, lastErr)
}
func (t *tx) KillJob(ctx context.Context, id uuid.UUID, lastErr string) error {
	return t.o.finish(id, domain.JobDead, nil, lastErr)
}
func (t *tx) GetJob(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	return t.o.getJob(id)
}
func (t *tx) RequeueStaleJobs(ctx context.Context, cutoff time.Time) (int, error) {
	return t.o.requeueStale(cutoff), nil
}

// ============================================================
// Document operations
// ============================================================

func (o ops) table(name string) map[uuid.UUID][]byte {
	t, ok := o.st.tables[name]
	if !ok {
		t = map[uuid.UUID][]byte{}
		o.st.tables[name] = t
	}
	return t
}

func (o ops) get(table string, id uuid.UUID) ([]byte, error) {
	raw, ok := o.table(table)[id]
	if !ok {
		return nil, store.ErrNoDocument
	}
	return raw, nil
}

func (o ops) put(table string, id uuid.UUID, doc []byte) error {
	newDoc, err := decode(doc)
	if err != nil {
		return err
	}
	rows := o.table(table)
	for _, key := range o.st.defs[table].Unique {
		want := keyValues(newDoc, key)
		if allEmpty(want) {
			continue
		}
		for otherID, raw := range rows {
			if otherID == id {
				continue
			}
			other, err := decode(raw)
			if err != nil {
				return err
			}
			if equalKeys(want, keyValues(other, key)) {
				return &store.DuplicateError{Table: table, Key: strings.Join(key, ",")}
			}
		}
	}
	if _, exists := rows[id]; !exists {
		o.st.next++
		o.st.seq[id] = o.st.next
	}
	rows[id] = append([]byte(nil), doc...)
	return nil
}

func (o ops) find(table string, q store.Query) ([][]byte, error) {
	type row struct {
		id  uuid.UUID
		doc map[string]any
		raw []byte
	}
	var matched []row
	for id, raw := range o.table(table) {
		doc, err := decode(raw)
		if err != nil {
			return nil, err
		}
		if matchAll(doc, q.Where) {
			matched = append(matched, row{id, doc, raw})
		}
	}
	sort.SliceStable(matched, func(i, k int) bool {
		if q.OrderBy != "" {
			c := compare(lookup(matched[i].doc, q.OrderBy), lookup(matched[k].doc, q.OrderBy))
			if c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return o.st.seq[matched[i].id] < o.st.seq[matched[k].id]
	})
	if q.Offset > 0 {
		if q.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[q.Offset:]
		}
	}
	if q.Limit > 0 && len(matched) > q.Limit {
		matched = matched[:q.Limit]
	}
	out := make([][]byte, 0, len(matched))
	for _, r := range matched {
		out = append(out, r.raw)
	}
	return out, nil
}

func (o ops) delete(table string, where []store.Cond) (int, error) {
	rows := o.table(table)
	n := 0
	for id, raw := range rows {
		doc, err := decode(raw)
		if err != nil {
			return n, err
		}
		if matchAll(doc, where) {
			delete(rows, id)
			delete(o.st.seq, id)
			n++
		}
	}
	return n, nil
}

func (o ops) setFields(table string, id uuid.UUID, fields map[string]any) error {
	raw, err := o.get(table, id)
	if err != nil {
		return err
	}
	doc, err := decode(raw)
	if err != nil {
		return err
	}
	for k, v := range fields {
		doc[k] = v
	}
	out, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return o.put(table, id, out)
}

func (o ops) setFieldIfEmpty(table string, id uuid.UUID, field, value string) (bool, error) {
	raw, err := o.get(table, id)
	if err != nil {
		return false, err
	}
	doc, err := decode(raw)
	if err != nil {
		return false, err
	}
	if store.Text(doc[field]) != "" {
		return false, nil
	}
	return true, o.setFields(table, id, map[string]any{field: value})
}

// ============================================================
// Jobs
// ============================================================

func (o ops) enqueue(job *domain.Job) (*domain.Job, error) {
	now := time.Now().UTC()
	if job.DedupeKey != "" {
		for id, existing := range o.st.jobs {
			if existing.DedupeKey != job.DedupeKey || existing.Status != domain.JobPending {
				continue
			}
			existing.Payload = job.Payload
			if job.RunAt.Before(existing.RunAt) {
				existing.RunAt = job.RunAt
			}
			existing.UpdatedAt = now
			o.st.jobs[id] = existing
			out := existing
			return &out, nil
		}
	}
	j := *job
	if j.ID == uuid.Nil {
		j.ID = uuid.New()
	}
	j.Status = domain.JobPending
	if j.RunAt.IsZero() {
		j.RunAt = now
	}
	j.CreatedAt, j.UpdatedAt = now, now
	o.st.jobs[j.ID] = j
	out := j
	return &out, nil
}

func (o ops) claim(limit int, now time.Time) []domain.Job {
	inFlight := map[string]bool{}
	var due []domain.Job
	for _, j := range o.st.jobs {
		switch {
		case j.Status == domain.JobInFlight && j.DedupeKey != "":
			inFlight[j.DedupeKey] = true
		case j.Status == domain.JobPending && !j.RunAt.After(now):
			due = append(due, j)
		}
	}
	sort.Slice(due, func(i, k int) bool { return due[i].RunAt.Before(due[k].RunAt) })
	var claimed []domain.Job
	for _, j := range due {
		if len(claimed) >= limit {
			break
		}
		if j.DedupeKey != "" && inFlight[j.DedupeKey] {
			continue
		}
		t := now
		j.Status = domain.JobInFlight
		j.Attempts++
		j.LockedAt = &t
		j.UpdatedAt = now
		o.st.jobs[j.ID] = j
		if j.DedupeKey != "" {
			inFlight[j.DedupeKey] = true
		}
		claimed = append(claimed, j)
	}
	return claimed
}

func (o ops) finish(id uuid.UUID, status domain.JobStatus, result []byte, lastErr string) error {
	j, ok := o.st.jobs[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "job", ID: id.String()}
	}
	j.Status = status
	j.LockedAt = nil
	if result != nil {
		j.Result = append([]byte(nil), result...)
	}
	if lastErr != "" {
		j.LastError = lastErr
	}
	j.UpdatedAt = time.Now().UTC()
	o.st.jobs[id] = j
	return nil
}

func (o ops) retry(id uuid.UUID, runAt time.Time, lastErr string) error {
	j, ok := o.st.jobs[id]
	if !ok {
		return &domain.ErrNotFound{Resource: "job", ID: id.String()}
	}
	j.LastError = lastErr
	j.LockedAt = nil
	j.UpdatedAt = time.Now().UTC()
	if j.DedupeKey != "" {
		for _, other := range o.st.jobs {
			if other.ID != id && other.DedupeKey == j.DedupeKey && other.Status == domain.JobPending {
				// a newer pending job carries the same work
				j.Status = domain.JobDone
				o.st.jobs[id] = j
				return nil
			}
		}
	}
	j.Status = domain.JobPending
	j.RunAt = runAt
	o.st.jobs[id] = j
	return nil
}

func (o ops) getJob(id uuid.UUID) (*domain.Job, error) {
	j, ok := o.st.jobs[id]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "job", ID: id.String()}
	}
	return &j, nil
}

func (o ops) requeueStale(cutoff time.Time) int {
	pending := map[string]bool{}
	for _, j := range o.st.jobs {
		if j.Status == domain.JobPending && j.DedupeKey != "" {
			pending[j.DedupeKey] = true
		}
	}
	n := 0
	for id, j := range o.st.jobs {
		if j.DedupeKey != "" && pending[j.DedupeKey] {
			continue
		}
		if j.Status == domain.JobInFlight && j.LockedAt != nil && j.LockedAt.Before(cutoff) {
			j.Status = domain.JobPending
			j.LockedAt = nil
			o.st.jobs[id] = j
			n++
		}
	}
	return n
}

// ============================================================
// Condition evaluation
// ============================================================

func decode(raw []byte) (map[string]any, error) {
	var doc map[string]any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("memstore: decode document: %w", err)
	}
	return doc, nil
}

func lookup(doc map[string]any, field string) any {
	var cur any = doc
	for _, part := range store.Path(field) {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[part]
	}
	return cur
}

func keyValues(doc map[string]any, key []string) []string {
	vals := make([]string, len(key))
	for i, f := range key {
		vals[i] = store.Text(lookup(doc, f))
	}
	return vals
}

func allEmpty(vals []string) bool {
	for _, v := range vals {
		if v != "" {
			return false
		}
	}
	return true
}

func equalKeys(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func matchAll(doc map[string]any, conds []store.Cond) bool {
	for _, c := range conds {
		if !match(doc, c) {
			return false
		}
	}
	return true
}

func match(doc map[string]any, c store.Cond) bool {
	switch c.Op {
	case store.OpOr:
		for _, sub := range c.Sub {
			if match(doc, sub) {
				return true
			}
		}
		return false
	case store.OpNot:
		return !match(doc, c.Sub[0])
	case store.OpHasElement:
		arr, _ := lookup(doc, c.Field).([]any)
		for _, v := range arr {
			if store.Text(v) == c.Values[0] {
				return true
			}
		}
		return false
	}

	v := lookup(doc, c.Field)
	if c.Op == store.OpIsNull {
		return v == nil
	}
	if v == nil {
		return false
	}
	text := store.Text(v)
	switch c.Op {
	case store.OpEq:
		return text == c.Values[0]
	case store.OpIn:
		for _, want := range c.Values {
			if text == want {
				return true
			}
		}
		return false
	case store.OpContains:
		return strings.Contains(strings.ToLower(text), strings.ToLower(c.Values[0]))
	case store.OpHasPrefix:
		return strings.HasPrefix(text, c.Values[0])
	case store.OpGte:
		return text >= c.Values[0]
	case store.OpLt:
		return text < c.Values[0]
	}
	return false
}

// compare orders JSON scalars: numbers numerically, everything else as text,
// nulls first.
func compare(a, b any) int {
	if a == nil || b == nil {
		switch {
		case a == nil && b == nil:
			return 0
		case a == nil:
			return -1
		}
		return 1
	}
	fa, aNum := a.(float64)
	fb, bNum := b.(float64)
	if aNum && bNum {
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return strings.Compare(store.Text(a), store.Text(b))
}

