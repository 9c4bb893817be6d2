package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // pure-Go SQLite driver (no cgo)

	"github.com/tunnelforge/orchestrator/internal/core"
)

// SQLiteStore implements Store with SQLite persistence.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// dbPath and runs migrations. Use ":memory:" for an ephemeral store
// (tests).
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dbPath, err)
	}
	// SQLite does not support concurrent writers; a single
	// connection avoids "database is locked" under WAL.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS nodes (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			fingerprint TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL DEFAULT 'inactive',
			metadata TEXT NOT NULL DEFAULT '{}',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS tunnels (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL DEFAULT '',
			core TEXT NOT NULL,
			type TEXT NOT NULL DEFAULT '',
			node_id TEXT NOT NULL DEFAULT '',
			iran_node_id TEXT NOT NULL DEFAULT '',
			foreign_node_id TEXT NOT NULL DEFAULT '',
			spec TEXT NOT NULL DEFAULT '{}',
			status TEXT NOT NULL DEFAULT 'pending',
			error_message TEXT NOT NULL DEFAULT '',
			revision INTEGER NOT NULL DEFAULT 0,
			used_mb REAL NOT NULL DEFAULT 0,
			quota_mb REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tunnels_status ON tunnels(status)`,
		`CREATE INDEX IF NOT EXISTS idx_tunnels_iran_node ON tunnels(iran_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tunnels_foreign_node ON tunnels(foreign_node_id)`,
		`CREATE INDEX IF NOT EXISTS idx_tunnels_node ON tunnels(node_id)`,
		`CREATE TABLE IF NOT EXISTS usage (
			id TEXT PRIMARY KEY,
			tunnel_id TEXT NOT NULL,
			node_id TEXT NOT NULL DEFAULT '',
			bytes INTEGER NOT NULL DEFAULT 0,
			reported_mb REAL NOT NULL DEFAULT 0,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_usage_tunnel ON usage(tunnel_id)`,
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL DEFAULT '{}',
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

func (s *SQLiteStore) Close() error { return s.db.Close() }

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (s *SQLiteStore) PutNode(ctx context.Context, n *core.Node) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if n.CreatedAt.IsZero() {
		n.CreatedAt = now
	}
	n.UpdatedAt = now

	metaJSON, err := json.Marshal(n.Metadata)
	if err != nil {
		return fmt.Errorf("marshal node metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO nodes (id, name, fingerprint, status, metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, fingerprint=excluded.fingerprint, status=excluded.status,
			metadata=excluded.metadata, updated_at=excluded.updated_at`,
		n.ID, n.Name, n.Fingerprint, string(n.Status), string(metaJSON), n.CreatedAt, n.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetNode(ctx context.Context, id string) (*core.Node, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, fingerprint, status, metadata, created_at, updated_at FROM nodes WHERE id = ?`, id)
	n, err := scanNode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.ErrNodeNotFound{NodeID: id}
	}
	return n, err
}

func (s *SQLiteStore) ListNodes(ctx context.Context) ([]*core.Node, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, fingerprint, status, metadata, created_at, updated_at FROM nodes ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Node
	for rows.Next() {
		n, err := scanNode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteNode(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, id)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNode(row rowScanner) (*core.Node, error) {
	var n core.Node
	var status, metaJSON string
	if err := row.Scan(&n.ID, &n.Name, &n.Fingerprint, &status, &metaJSON, &n.CreatedAt, &n.UpdatedAt); err != nil {
		return nil, err
	}
	n.Status = core.NodeStatus(status)
	if err := json.Unmarshal([]byte(metaJSON), &n.Metadata); err != nil {
		return nil, fmt.Errorf("unmarshal node metadata: %w", err)
	}
	return &n, nil
}

// ---------------------------------------------------------------------------
// Tunnels
// ---------------------------------------------------------------------------

func (s *SQLiteStore) PutTunnel(ctx context.Context, t *core.Tunnel) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now

	specJSON, err := json.Marshal(t.Spec)
	if err != nil {
		return fmt.Errorf("marshal tunnel spec: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tunnels (id, name, core, type, node_id, iran_node_id, foreign_node_id, spec, status,
			error_message, revision, used_mb, quota_mb, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, core=excluded.core, type=excluded.type, node_id=excluded.node_id,
			iran_node_id=excluded.iran_node_id, foreign_node_id=excluded.foreign_node_id, spec=excluded.spec,
			status=excluded.status, error_message=excluded.error_message, revision=excluded.revision,
			used_mb=excluded.used_mb, quota_mb=excluded.quota_mb, updated_at=excluded.updated_at`,
		t.ID, t.Name, string(t.Core), t.Type, t.NodeID, t.IranNodeID, t.ForeignNodeID, string(specJSON),
		string(t.Status), t.ErrorMessage, t.Revision, t.UsedMB, t.QuotaMB, t.CreatedAt, t.UpdatedAt)
	return err
}

func (s *SQLiteStore) GetTunnel(ctx context.Context, id string) (*core.Tunnel, error) {
	row := s.db.QueryRowContext(ctx, tunnelSelect+` WHERE id = ?`, id)
	t, err := scanTunnel(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &core.ErrTunnelNotFound{TunnelID: id}
	}
	return t, err
}

func (s *SQLiteStore) ListTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	return s.queryTunnels(ctx, tunnelSelect+` ORDER BY created_at`)
}

func (s *SQLiteStore) ListActiveTunnels(ctx context.Context) ([]*core.Tunnel, error) {
	return s.queryTunnels(ctx, tunnelSelect+` WHERE status = ? ORDER BY created_at`, string(core.TunnelActive))
}

func (s *SQLiteStore) ListTunnelsByNode(ctx context.Context, nodeID string) ([]*core.Tunnel, error) {
	return s.queryTunnels(ctx, tunnelSelect+` WHERE node_id = ? OR iran_node_id = ? OR foreign_node_id = ? ORDER BY created_at`,
		nodeID, nodeID, nodeID)
}

func (s *SQLiteStore) queryTunnels(ctx context.Context, query string, args ...any) ([]*core.Tunnel, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*core.Tunnel
	for rows.Next() {
		t, err := scanTunnel(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteTunnel(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM tunnels WHERE id = ?`, id)
	return err
}

const tunnelSelect = `SELECT id, name, core, type, node_id, iran_node_id, foreign_node_id, spec, status,
	error_message, revision, used_mb, quota_mb, created_at, updated_at FROM tunnels`

func scanTunnel(row rowScanner) (*core.Tunnel, error) {
	var t core.Tunnel
	var coreName, status, specJSON string
	if err := row.Scan(&t.ID, &t.Name, &coreName, &t.Type, &t.NodeID, &t.IranNodeID, &t.ForeignNodeID,
		&specJSON, &status, &t.ErrorMessage, &t.Revision, &t.UsedMB, &t.QuotaMB, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}
	t.Core = core.Core(coreName)
	t.Status = core.TunnelStatus(status)
	if err := json.Unmarshal([]byte(specJSON), &t.Spec); err != nil {
		return nil, fmt.Errorf("unmarshal tunnel spec: %w", err)
	}
	return &t, nil
}

// ---------------------------------------------------------------------------
// Usage
// ---------------------------------------------------------------------------

func (s *SQLiteStore) AppendUsage(ctx context.Context, u *core.Usage) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage (id, tunnel_id, node_id, bytes, reported_mb, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID, u.TunnelID, u.NodeID, u.Bytes, u.ReportedMB, u.CreatedAt)
	return err
}

// ---------------------------------------------------------------------------
// Settings
// ---------------------------------------------------------------------------

func (s *SQLiteStore) GetSetting(ctx context.Context, key string) ([]byte, bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return []byte(value), true, nil
}

func (s *SQLiteStore) PutSetting(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, string(value), time.Now().UTC())
	return err
}

var _ Store = (*SQLiteStore)(nil)
