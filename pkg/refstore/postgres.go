package refstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/cuemby/cellar/pkg/cellarerr"
)

var identifierPattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateIdentifier rejects anything that isn't a plain SQL identifier,
// since table/channel names are interpolated into DDL/DML text that
// cannot be parameterized.
func validateIdentifier(name string) error {
	if !identifierPattern.MatchString(name) {
		return fmt.Errorf("must match %s", identifierPattern.String())
	}
	return nil
}

// PostgresStore is the remote RefStore adapter of spec.md §4.2/§6: table
// references(name, namespace, fingerprint), UNIQUE(name, namespace).
// Cross-process notification rides pq.Listener on a channel fed by a
// trigger EnsureSchema installs alongside the table.
type PostgresStore struct {
	db      *sql.DB
	table   string
	channel string
	broker  *Broker

	listener *pq.Listener
	stopCh   chan struct{}
}

// PostgresOptions configures PostgresStore at construction.
type PostgresOptions struct {
	// TableName overrides the default "cellar_references".
	TableName string
	// Channel overrides the default NOTIFY channel "references_changed".
	Channel string
	// DSN is required to start the change-feed listener (pq.Listener
	// dials independently of the *sql.DB connection pool).
	DSN string
}

// NewPostgresStore wraps an already-open *sql.DB and, if opts.DSN is
// set, starts a pq.Listener that translates the backend's NOTIFY
// payloads into Broker.Publish calls.
func NewPostgresStore(db *sql.DB, opts PostgresOptions) (*PostgresStore, error) {
	if db == nil {
		return nil, cellarerr.Precondition("refstore: postgres store requires a non-nil *sql.DB")
	}
	table := strings.TrimSpace(opts.TableName)
	if table == "" {
		table = "cellar_references"
	}
	if err := validateIdentifier(table); err != nil {
		return nil, cellarerr.Precondition("refstore: invalid table name %q: %v", table, err)
	}
	channel := strings.TrimSpace(opts.Channel)
	if channel == "" {
		channel = "references_changed"
	}
	if err := validateIdentifier(channel); err != nil {
		return nil, cellarerr.Precondition("refstore: invalid channel name %q: %v", channel, err)
	}

	s := &PostgresStore{
		db:      db,
		table:   table,
		channel: channel,
		broker:  NewBroker(),
		stopCh:  make(chan struct{}),
	}

	if opts.DSN != "" {
		s.listener = pq.NewListener(opts.DSN, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Printf("refstore: postgres listener event: %v", err)
			}
		})
		if err := s.listener.Listen(channel); err != nil {
			return nil, cellarerr.BackendFailure("refstore-postgres", "listen", err)
		}
		go s.consumeNotifications()
	}

	return s, nil
}

// Close stops the change-feed listener, if one was started.
func (s *PostgresStore) Close() error {
	if s.listener == nil {
		return nil
	}
	close(s.stopCh)
	return s.listener.Close()
}

// consumeNotifications translates each NOTIFY payload — JSON
// {"name":...,"namespace":...,"old":...,"new":...} the trigger
// EnsureSchema installs emits — into a Broker.Publish call, giving
// subscribers on other processes the same callback the in-process path
// delivers.
func (s *PostgresStore) consumeNotifications() {
	for {
		select {
		case <-s.stopCh:
			return
		case n, ok := <-s.listener.Notify:
			if !ok {
				return
			}
			if n == nil {
				continue
			}
			s.handleNotifyPayload(n.Extra)
		}
	}
}

type refChangePayload struct {
	Name      string  `json:"name"`
	Namespace string  `json:"namespace"`
	Old       *string `json:"old"`
	New       string  `json:"new"`
}

func (s *PostgresStore) handleNotifyPayload(raw string) {
	var p refChangePayload
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		log.Printf("refstore: malformed notify payload: %v", err)
		return
	}
	s.broker.Publish(p.Name, p.Namespace, p.Old, p.New)
}

// EnsureSchema creates the backing table, a UNIQUE(name, namespace)
// constraint, and a NOTIFY trigger on channel. Safe to call repeatedly;
// part of `cellar migrate`.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
  name        TEXT NOT NULL,
  namespace   TEXT NOT NULL DEFAULT '',
  fingerprint TEXT NOT NULL,
  UNIQUE (name, namespace)
);

CREATE OR REPLACE FUNCTION %[1]s_notify() RETURNS trigger AS $$
DECLARE
  payload JSON;
BEGIN
  IF TG_OP = 'DELETE' THEN
    payload := json_build_object(
      'name', OLD.name,
      'namespace', OLD.namespace,
      'old', OLD.fingerprint,
      'new', NULL
    );
    PERFORM pg_notify('%[2]s', payload::text);
    RETURN OLD;
  END IF;

  payload := json_build_object(
    'name', NEW.name,
    'namespace', NEW.namespace,
    'old', CASE WHEN TG_OP = 'UPDATE' THEN OLD.fingerprint ELSE NULL END,
    'new', NEW.fingerprint
  );
  PERFORM pg_notify('%[2]s', payload::text);
  RETURN NEW;
END;
$$ LANGUAGE plpgsql;

DROP TRIGGER IF EXISTS %[1]s_notify_trigger ON %[1]s;
CREATE TRIGGER %[1]s_notify_trigger
  AFTER INSERT OR UPDATE OR DELETE ON %[1]s
  FOR EACH ROW EXECUTE FUNCTION %[1]s_notify();
`, s.table, s.channel)

	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return cellarerr.BackendFailure("refstore-postgres", "EnsureSchema", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, name, namespace string) (string, bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return "", false, err
	}
	q := fmt.Sprintf(`SELECT fingerprint FROM %s WHERE name = $1 AND namespace = $2`, s.table)
	var fp string
	err := s.db.QueryRowContext(ctx, q, name, namespace).Scan(&fp)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, cellarerr.BackendFailure("refstore-postgres", "Get", err)
	}
	return fp, true, nil
}

func (s *PostgresStore) New(ctx context.Context, name, namespace, fingerprint string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	q := fmt.Sprintf(`
INSERT INTO %s (name, namespace, fingerprint) VALUES ($1, $2, $3)
ON CONFLICT (name, namespace) DO NOTHING`, s.table)
	res, err := s.db.ExecContext(ctx, q, name, namespace, fingerprint)
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "New", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "New rows affected", err)
	}
	created := n == 1
	if created {
		s.broker.Publish(name, namespace, nil, fingerprint)
	}
	return created, nil
}

func (s *PostgresStore) Update(ctx context.Context, name, namespace, expected, desired string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	q := fmt.Sprintf(`
UPDATE %s SET fingerprint = $4
WHERE name = $1 AND namespace = $2 AND fingerprint = $3`, s.table)
	res, err := s.db.ExecContext(ctx, q, name, namespace, expected, desired)
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "Update", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "Update rows affected", err)
	}
	updated := n == 1
	if updated {
		old := expected
		s.broker.Publish(name, namespace, &old, desired)
	}
	return updated, nil
}

func (s *PostgresStore) Delete(ctx context.Context, name, namespace string) (bool, error) {
	if err := ValidateKey(name, namespace); err != nil {
		return false, err
	}
	var old string
	if err := s.db.QueryRowContext(ctx,
		fmt.Sprintf(`SELECT fingerprint FROM %s WHERE name = $1 AND namespace = $2`, s.table),
		name, namespace).Scan(&old); err != nil && err != sql.ErrNoRows {
		return false, cellarerr.BackendFailure("refstore-postgres", "Delete lookup", err)
	}

	q := fmt.Sprintf(`DELETE FROM %s WHERE name = $1 AND namespace = $2`, s.table)
	res, err := s.db.ExecContext(ctx, q, name, namespace)
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "Delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, cellarerr.BackendFailure("refstore-postgres", "Delete rows affected", err)
	}
	deleted := n == 1
	if deleted {
		s.broker.Publish(name, namespace, &old, "")
	}
	return deleted, nil
}

func (s *PostgresStore) Subscribe(name, namespace string, callback Callback) (uuid.UUID, error) {
	return s.broker.Subscribe(name, namespace, callback), nil
}

// SubscriptionCount returns the number of active subscriptions, for
// metrics collection.
func (s *PostgresStore) SubscriptionCount() int {
	return s.broker.Count()
}

func (s *PostgresStore) Unsubscribe(id uuid.UUID) bool {
	return s.broker.Unsubscribe(id)
}
