// Package sqlstore persists identities and resource tiers in a SQL database.
// SQLite (modernc.org/sqlite) and PostgreSQL (github.com/lib/pq) are
// supported; the schema is applied from embedded migrations on Open.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ggoodman/tiergate/identity"
	"github.com/lib/pq"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Driver names accepted by Open.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrAlreadyRegistered is returned by Register when the external id is taken.
var ErrAlreadyRegistered = errors.New("sqlstore: external id already registered")

type dialect struct {
	driver string
}

// rebind rewrites '?' placeholders into the driver's native form.
func (d dialect) rebind(query string) string {
	if d.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// Store implements identity.Resolver and identity.TierLookup.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Open connects to dsn using driver, verifies the connection and applies
// migrations. For SQLite the dsn is a file path or ":memory:".
func Open(ctx context.Context, driver, dsn string) (*Store, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	var root string
	switch driver {
	case DriverSQLite:
		root = "sqlite"
		if !strings.Contains(dsn, "?") {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"
		}
	case DriverPostgres:
		root = "postgres"
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s db: %w", driver, err)
	}
	if driver == DriverSQLite && strings.HasPrefix(dsn, ":memory:") {
		// Every connection to :memory: is a distinct database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", driver, err)
	}

	if _, err := applyMigrations(ctx, db, driver, root); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, dialect: dialect{driver: driver}, now: time.Now}, nil
}

// Close closes the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Register creates the identity for an external provider id. Registration is
// an explicit step: login completion never provisions identities on its own.
// A zero Tier registers the identity as TierFree.
func (s *Store) Register(ctx context.Context, id identity.Identity) (*identity.Identity, error) {
	if id.ExternalID <= 0 {
		return nil, fmt.Errorf("external id must be positive")
	}
	id.Mail = strings.TrimSpace(id.Mail)
	id.Login = strings.TrimSpace(id.Login)
	if id.Mail == "" {
		return nil, fmt.Errorf("mail is required")
	}
	if id.Login == "" {
		return nil, fmt.Errorf("login is required")
	}
	if id.Tier == identity.TierUnknown {
		id.Tier = identity.TierFree
	}

	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`INSERT INTO identities (external_id, mail, login, profile_image_url, tier, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING id`),
		id.ExternalID,
		id.Mail,
		id.Login,
		id.ProfileImageURL,
		id.Tier,
		s.now().UTC().UnixMilli(),
	).Scan(&id.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %d", ErrAlreadyRegistered, id.ExternalID)
		}
		return nil, fmt.Errorf("insert identity: %w", err)
	}
	return &id, nil
}

// FindByExternalID implements identity.Resolver.
func (s *Store) FindByExternalID(ctx context.Context, externalID int64) (*identity.Identity, error) {
	var id identity.Identity
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT id, external_id, mail, login, profile_image_url, tier
		 FROM identities
		 WHERE external_id = ?`),
		externalID,
	).Scan(&id.ID, &id.ExternalID, &id.Mail, &id.Login, &id.ProfileImageURL, &id.Tier)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, identity.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query identity: %w", err)
	}
	return &id, nil
}

// SetTier changes the tier of a registered identity. It does not touch
// caches in front of the store; use identity.CachingResolver.SetTier to
// update both.
func (s *Store) SetTier(ctx context.Context, externalID int64, t identity.Tier) error {
	if !t.Valid() {
		return fmt.Errorf("invalid tier %s", t)
	}
	res, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`UPDATE identities SET tier = ? WHERE external_id = ?`), t, externalID)
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update tier: %w", err)
	}
	if n == 0 {
		return identity.ErrNotFound
	}
	return nil
}

// PutResource records (or replaces) the tier required for resourceID.
func (s *Store) PutResource(ctx context.Context, resourceID string, t identity.Tier) error {
	resourceID = strings.TrimSpace(resourceID)
	if resourceID == "" {
		return fmt.Errorf("resource id is required")
	}
	if !t.Valid() {
		return fmt.Errorf("invalid tier %s", t)
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(
		`INSERT INTO resources (id, tier, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET tier = excluded.tier, updated_at = excluded.updated_at`),
		resourceID, t, s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert resource: %w", err)
	}
	return nil
}

// FindResourceTier implements identity.TierLookup.
func (s *Store) FindResourceTier(ctx context.Context, resourceID string) (identity.Tier, error) {
	var t identity.Tier
	err := s.db.QueryRowContext(ctx, s.dialect.rebind(
		`SELECT tier FROM resources WHERE id = ?`), resourceID).Scan(&t)
	if errors.Is(err, sql.ErrNoRows) {
		return identity.TierUnknown, identity.ErrNotFound
	}
	if err != nil {
		return identity.TierUnknown, fmt.Errorf("query resource tier: %w", err)
	}
	return t, nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return false
}

var (
	_ identity.Resolver   = (*Store)(nil)
	_ identity.TierSetter = (*Store)(nil)
	_ identity.TierLookup = (*Store)(nil)
)
