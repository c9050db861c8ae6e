package blob

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/lib/pq"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

// PostgresStore is the remote BlobStore adapter of spec.md §4.1: a
// two-column table (fingerprint, payload). Unique-violation inserts are
// treated as success (Put is idempotent by fingerprint), matching the
// spec's adapter contract.
type PostgresStore struct {
	db    *sql.DB
	table string
}

// PostgresOptions configures PostgresStore at construction.
type PostgresOptions struct {
	// TableName overrides the default "cellar_blobs". Validated against
	// a conservative identifier charset to avoid injection through
	// fmt.Sprintf-built DDL/DML.
	TableName string
}

// NewPostgresStore wraps an already-open *sql.DB (dialed with driver
// name "postgres", registered by this file's lib/pq import).
func NewPostgresStore(db *sql.DB, opts PostgresOptions) (*PostgresStore, error) {
	if db == nil {
		return nil, cellarerr.Precondition("blob: postgres store requires a non-nil *sql.DB")
	}
	table := strings.TrimSpace(opts.TableName)
	if table == "" {
		table = "cellar_blobs"
	}
	if err := validateIdentifier(table); err != nil {
		return nil, cellarerr.Precondition("blob: invalid table name %q: %v", table, err)
	}
	return &PostgresStore{db: db, table: table}, nil
}

// EnsureSchema creates the backing table if it does not exist. Safe to
// call repeatedly; part of `cellar migrate`.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	q := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %s (
  fingerprint TEXT PRIMARY KEY,
  payload     JSONB NOT NULL
);`, s.table)
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return cellarerr.BackendFailure("postgres", "EnsureSchema", err)
	}
	return nil
}

func (s *PostgresStore) Has(ctx context.Context, fingerprint string) (bool, error) {
	q := fmt.Sprintf(`SELECT 1 FROM %s WHERE fingerprint = $1`, s.table)
	var one int
	err := s.db.QueryRowContext(ctx, q, fingerprint).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, cellarerr.BackendFailure("postgres", "Has", err)
	}
	return true, nil
}

func (s *PostgresStore) Get(ctx context.Context, fingerprint string) ([]byte, bool, error) {
	q := fmt.Sprintf(`SELECT payload FROM %s WHERE fingerprint = $1`, s.table)
	var payload []byte
	err := s.db.QueryRowContext(ctx, q, fingerprint).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, cellarerr.BackendFailure("postgres", "Get", err)
	}
	return payload, true, nil
}

// GetMany issues a single `WHERE fingerprint = ANY($1)` query instead of
// the parallel per-fingerprint default, since the database can already
// batch the lookup far more cheaply than N round trips.
func (s *PostgresStore) GetMany(ctx context.Context, fingerprints []string) (map[string][]byte, error) {
	if len(fingerprints) == 0 {
		return map[string][]byte{}, nil
	}
	q := fmt.Sprintf(`SELECT fingerprint, payload FROM %s WHERE fingerprint = ANY($1)`, s.table)
	rows, err := s.db.QueryContext(ctx, q, pq.Array(fingerprints))
	if err != nil {
		return nil, cellarerr.BackendFailure("postgres", "GetMany", err)
	}
	defer rows.Close()

	out := make(map[string][]byte, len(fingerprints))
	for rows.Next() {
		var fp string
		var payload []byte
		if err := rows.Scan(&fp, &payload); err != nil {
			return nil, cellarerr.BackendFailure("postgres", "GetMany scan", err)
		}
		out[fp] = payload
	}
	if err := rows.Err(); err != nil {
		return nil, cellarerr.BackendFailure("postgres", "GetMany rows", err)
	}
	return out, nil
}

func (s *PostgresStore) Put(ctx context.Context, blob []byte) (string, error) {
	fp := fingerprintOf(blob)
	q := fmt.Sprintf(`
INSERT INTO %s (fingerprint, payload) VALUES ($1, $2)
ON CONFLICT (fingerprint) DO NOTHING`, s.table)
	if _, err := s.db.ExecContext(ctx, q, fp, blob); err != nil {
		return "", cellarerr.BackendFailure("postgres", "Put", err)
	}
	return fp, nil
}

// PutMany wraps every insert in one transaction so a partial failure
// never leaves some blobs written and others not.
func (s *PostgresStore) PutMany(ctx context.Context, blobs [][]byte) ([]string, error) {
	fps := make([]string, len(blobs))
	if len(blobs) == 0 {
		return fps, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, cellarerr.BackendFailure("postgres", "PutMany begin", err)
	}
	defer tx.Rollback()

	q := fmt.Sprintf(`
INSERT INTO %s (fingerprint, payload) VALUES ($1, $2)
ON CONFLICT (fingerprint) DO NOTHING`, s.table)
	for i, blob := range blobs {
		fp := fingerprintOf(blob)
		fps[i] = fp
		if _, err := tx.ExecContext(ctx, q, fp, blob); err != nil {
			return nil, cellarerr.BackendFailure("postgres", "PutMany", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, cellarerr.BackendFailure("postgres", "PutMany commit", err)
	}
	return fps, nil
}

func (s *PostgresStore) Delete(ctx context.Context, fingerprint string) error {
	q := fmt.Sprintf(`DELETE FROM %s WHERE fingerprint = $1`, s.table)
	if _, err := s.db.ExecContext(ctx, q, fingerprint); err != nil {
		return cellarerr.BackendFailure("postgres", "Delete", err)
	}
	return nil
}

// validateIdentifier is a conservative check against SQL injection when
// a table name is interpolated into DDL/DML via fmt.Sprintf: only
// letters, digits, and underscore, must start with a letter or
// underscore.
func validateIdentifier(name string) error {
	if name == "" {
		return fmt.Errorf("identifier must not be empty")
	}
	for i, r := range name {
		switch {
		case r == '_':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
			if i == 0 {
				return fmt.Errorf("identifier must not start with a digit")
			}
		default:
			return fmt.Errorf("identifier contains disallowed character %q", r)
		}
	}
	return nil
}
