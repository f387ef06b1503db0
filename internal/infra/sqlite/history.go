package sqlite

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/cockroachdb/errors"

	"github.com/gridmon/gridmon/internal/domain"
	"github.com/gridmon/gridmon/internal/infra/metrics"
)

// ProductRecord is one stored statistics sample. Payload is the product as
// it was published, JSON-encoded.
type ProductRecord struct {
	ID         int64             `json:"id"`
	Instance   string            `json:"instance"`
	Kind       domain.ObjectKind `json:"kind"`
	Object     string            `json:"object"`
	SampledAt  time.Time         `json:"sampled_at"`
	Dispatched int               `json:"dispatched"`
	Answered   int               `json:"answered"`
	Payload    json.RawMessage   `json:"payload"`
}

// SaveProduct appends a record and returns its row id.
func (d *DB) SaveProduct(rec ProductRecord) (int64, error) {
	if len(rec.Payload) == 0 {
		rec.Payload = json.RawMessage("null")
	}
	res, err := d.db.Exec(
		`INSERT INTO products (instance, kind, object, sampled_at, dispatched, answered, payload)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.Instance, string(rec.Kind), rec.Object, rec.SampledAt.UnixNano(),
		rec.Dispatched, rec.Answered, string(rec.Payload),
	)
	if err != nil {
		metrics.HistoryWrites.WithLabelValues("error").Inc()
		return 0, errors.Wrapf(err, "save product %s %s/%s", rec.Kind, rec.Instance, rec.Object)
	}
	metrics.HistoryWrites.WithLabelValues("ok").Inc()
	return res.LastInsertId()
}

// ListProducts returns up to limit records for one object, newest first.
// A limit of zero or less returns all of them.
func (d *DB) ListProducts(instance string, kind domain.ObjectKind, object string, limit int) ([]ProductRecord, error) {
	query := `SELECT id, instance, kind, object, sampled_at, dispatched, answered, payload
		 FROM products WHERE instance = ? AND kind = ? AND object = ?
		 ORDER BY sampled_at DESC, id DESC`
	args := []any{instance, string(kind), object}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := d.db.Query(query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "list products")
	}
	defer rows.Close()

	out := make([]ProductRecord, 0)
	for rows.Next() {
		rec, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PruneProducts keeps the newest keep records of one object and deletes the
// rest. It returns how many rows were removed.
func (d *DB) PruneProducts(instance string, kind domain.ObjectKind, object string, keep int) (int64, error) {
	if keep < 0 {
		keep = 0
	}
	res, err := d.db.Exec(
		`DELETE FROM products WHERE instance = ? AND kind = ? AND object = ? AND id NOT IN (
			SELECT id FROM products WHERE instance = ? AND kind = ? AND object = ?
			ORDER BY sampled_at DESC, id DESC LIMIT ?
		)`,
		instance, string(kind), object, instance, string(kind), object, keep,
	)
	if err != nil {
		return 0, errors.Wrap(err, "prune products")
	}
	return res.RowsAffected()
}

// CountProducts returns how many records exist for one object.
func (d *DB) CountProducts(instance string, kind domain.ObjectKind, object string) (int, error) {
	var n int
	err := d.db.QueryRow(
		`SELECT COUNT(*) FROM products WHERE instance = ? AND kind = ? AND object = ?`,
		instance, string(kind), object,
	).Scan(&n)
	return n, err
}

func scanProduct(rows *sql.Rows) (ProductRecord, error) {
	var rec ProductRecord
	var kind, payload string
	var sampledAt int64
	if err := rows.Scan(&rec.ID, &rec.Instance, &kind, &rec.Object, &sampledAt,
		&rec.Dispatched, &rec.Answered, &payload); err != nil {
		return rec, errors.Wrap(err, "scan product")
	}
	rec.Kind = domain.ObjectKind(kind)
	rec.SampledAt = time.Unix(0, sampledAt)
	rec.Payload = json.RawMessage(payload)
	return rec, nil
}
