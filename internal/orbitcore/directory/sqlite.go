package directory

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roasbeef/subtrate/internal/orbitcore/netid"
	"github.com/roasbeef/subtrate/internal/orbitcore/orbitretry"
)

// SqliteConfig holds the config needed to open the directory's backing
// SQLite database. It holds only the database file path; the single
// directory_entries table this backend needs is created on open.
type SqliteConfig struct {
	// DatabaseFileName is the full file path where the database file can
	// be found.
	DatabaseFileName string
}

// SqliteBackend is a SQLite-backed AddressableDirectory. All mutating
// operations are implemented as single-statement transactions so that
// GetOrPut and RemoveIf remain atomic under SQLite's single-writer model,
// giving the same compare-and-set guarantee the in-memory backend gets
// from its mutex.
type SqliteBackend struct {
	db *sql.DB
}

// NewSqliteBackend opens (creating if necessary) the SQLite database at
// cfg.DatabaseFileName, enables WAL mode, and ensures the directory
// entries table exists.
func NewSqliteBackend(cfg SqliteConfig) (*SqliteBackend, error) {
	dir := filepath.Dir(cfg.DatabaseFileName)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		cfg.DatabaseFileName,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite allows exactly one writer; a single shared connection avoids
	// SQLITE_BUSY from competing writers inside the same process.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(10 * time.Minute)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA cache_size = -65536",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	const schema = `
	CREATE TABLE IF NOT EXISTS directory_entries (
		interface_id TEXT NOT NULL,
		addr_key     TEXT NOT NULL,
		target_kind  TEXT NOT NULL,
		target_value TEXT NOT NULL,
		PRIMARY KEY (interface_id, addr_key)
	);`

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create directory_entries table: %w", err)
	}

	return &SqliteBackend{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SqliteBackend) Close() error {
	return s.db.Close()
}

// Get implements AddressableDirectory.
func (s *SqliteBackend) Get(ctx context.Context,
	ref netid.AddressableReference) (netid.NetTarget, bool, error) {

	var kind, value string
	err := s.db.QueryRowContext(ctx, `
		SELECT target_kind, target_value FROM directory_entries
		WHERE interface_id = ? AND addr_key = ?`,
		ref.InterfaceID, ref.Key,
	).Scan(&kind, &value)

	if errors.Is(err, sql.ErrNoRows) {
		return netid.NetTarget{}, false, nil
	}
	if err != nil {
		return netid.NetTarget{}, false, err
	}

	target, err := decodeTarget(kind, value)
	if err != nil {
		return netid.NetTarget{}, false, err
	}

	return target, true, nil
}

// GetOrPut implements AddressableDirectory as an INSERT OR IGNORE followed
// by a read-back, all inside one transaction so no other writer can
// interleave between the two steps. Every node in the cluster races this
// call for the same ref on first placement, so a SQLITE_BUSY from another
// process's writer is retried rather than surfaced as a placement failure.
func (s *SqliteBackend) GetOrPut(ctx context.Context,
	ref netid.AddressableReference, target netid.NetTarget) (netid.NetTarget, error) {

	kind, value := encodeTarget(target)

	var winner netid.NetTarget
	err := orbitretry.Attempt(ctx, orbitretry.DefaultConfig(),
		func(ctx context.Context) error {
			won, err := s.getOrPutOnce(ctx, ref, kind, value)
			if err != nil {
				if !isBusyError(err) {
					return orbitretry.Permanent(err)
				}
				return err
			}
			winner = won
			return nil
		},
	)
	if err != nil {
		return netid.NetTarget{}, err
	}

	return winner, nil
}

func (s *SqliteBackend) getOrPutOnce(ctx context.Context,
	ref netid.AddressableReference, kind, value string) (netid.NetTarget, error) {

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return netid.NetTarget{}, err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO directory_entries
			(interface_id, addr_key, target_kind, target_value)
		VALUES (?, ?, ?, ?)`,
		ref.InterfaceID, ref.Key, kind, value,
	)
	if err != nil {
		return netid.NetTarget{}, err
	}

	var wonKind, wonValue string
	err = tx.QueryRowContext(ctx, `
		SELECT target_kind, target_value FROM directory_entries
		WHERE interface_id = ? AND addr_key = ?`,
		ref.InterfaceID, ref.Key,
	).Scan(&wonKind, &wonValue)
	if err != nil {
		return netid.NetTarget{}, err
	}

	if err := tx.Commit(); err != nil {
		return netid.NetTarget{}, err
	}

	return decodeTarget(wonKind, wonValue)
}

// isBusyError reports whether err is SQLite's transient "database is
// locked" condition, the only failure this backend treats as retryable.
func isBusyError(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.Code == sqlite3.ErrBusy
	}
	return false
}

// Put implements AddressableDirectory as an unconditional upsert.
func (s *SqliteBackend) Put(ctx context.Context,
	ref netid.AddressableReference, target netid.NetTarget) error {

	kind, value := encodeTarget(target)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO directory_entries
			(interface_id, addr_key, target_kind, target_value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(interface_id, addr_key) DO UPDATE SET
			target_kind = excluded.target_kind,
			target_value = excluded.target_value`,
		ref.InterfaceID, ref.Key, kind, value,
	)

	return err
}

// RemoveIf implements AddressableDirectory as a conditional DELETE whose
// WHERE clause encodes the compare; rows-affected reports whether the
// compare matched.
func (s *SqliteBackend) RemoveIf(ctx context.Context,
	ref netid.AddressableReference, expected netid.NetTarget) (bool, error) {

	kind, value := encodeTarget(expected)

	result, err := s.db.ExecContext(ctx, `
		DELETE FROM directory_entries
		WHERE interface_id = ? AND addr_key = ?
			AND target_kind = ? AND target_value = ?`,
		ref.InterfaceID, ref.Key, kind, value,
	)
	if err != nil {
		return false, err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}

	return affected > 0, nil
}

// encodeTarget renders a NetTarget into the (kind, value) pair stored in
// the target_kind/target_value columns.
func encodeTarget(t netid.NetTarget) (string, string) {
	if node, ok := t.UnicastNode(); ok {
		return "unicast", string(node)
	}

	if nodes, ok := t.MulticastNodes(); ok {
		strs := make([]string, len(nodes))
		for i, n := range nodes {
			strs[i] = string(n)
		}
		return "multicast", strings.Join(strs, ",")
	}

	return "any", ""
}

// decodeTarget is the inverse of encodeTarget.
func decodeTarget(kind, value string) (netid.NetTarget, error) {
	switch kind {
	case "unicast":
		return netid.Unicast(netid.NodeIdentity(value)), nil
	case "multicast":
		var nodes []netid.NodeIdentity
		if value != "" {
			for _, s := range strings.Split(value, ",") {
				nodes = append(nodes, netid.NodeIdentity(s))
			}
		}
		return netid.Multicast(nodes), nil
	case "any":
		return netid.Any(), nil
	default:
		return netid.NetTarget{}, fmt.Errorf("directory: unknown target kind %q", kind)
	}
}

// Ensure SqliteBackend implements AddressableDirectory.
var _ AddressableDirectory = (*SqliteBackend)(nil)
