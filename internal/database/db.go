package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DB represents the database connection with pooling
type DB struct {
	*sql.DB
	pool     *ConnectionPool
	prepared map[string]*sql.Stmt
	mutex    sync.RWMutex
}

// ConnectionPool manages database connection pooling
type ConnectionPool struct {
	db           *sql.DB
	maxOpenConns int
	maxIdleConns int
	maxLifetime  time.Duration
}

// NewConnectionPool creates a new database connection pool
func NewConnectionPool(db *sql.DB, maxOpen, maxIdle int, maxLifetime time.Duration) *ConnectionPool {
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(maxLifetime)

	return &ConnectionPool{
		db:           db,
		maxOpenConns: maxOpen,
		maxIdleConns: maxIdle,
		maxLifetime:  maxLifetime,
	}
}

// GetStats returns connection pool statistics
func (cp *ConnectionPool) GetStats() map[string]interface{} {
	stats := cp.db.Stats()

	return map[string]interface{}{
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"max_open_connections": cp.maxOpenConns,
		"max_idle_connections": cp.maxIdleConns,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}

// NewDB opens (creating if needed) the ShipLoop database in dataDir
func NewDB(dataDir string) (*DB, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, "shiploop.db")
	// Immediate transactions make concurrent writers wait on the busy timeout
	// instead of failing when a read lock is upgraded.
	connStr := fmt.Sprintf("file:%s?_journal_mode=WAL&_synchronous=NORMAL&_foreign_keys=on&_busy_timeout=5000&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// sqlite serialises writers; a small pool avoids SQLITE_BUSY storms.
	pool := NewConnectionPool(db, 8, 4, 5*time.Minute)

	database := &DB{
		DB:       db,
		pool:     pool,
		prepared: make(map[string]*sql.Stmt),
	}

	if err := database.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := database.initPreparedStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize prepared statements: %w", err)
	}

	slog.Info("Database initialized",
		"path", dbPath,
		"max_open_conns", pool.maxOpenConns,
		"max_idle_conns", pool.maxIdleConns)

	return database, nil
}

func (db *DB) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id TEXT PRIMARY KEY,
			email TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL DEFAULT '',
			github_login TEXT UNIQUE,
			stripe_account_id TEXT UNIQUE,
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS ship_scores (
			profile_id TEXT PRIMARY KEY,
			commits INTEGER NOT NULL DEFAULT 0,
			launches INTEGER NOT NULL DEFAULT 0,
			revenue INTEGER NOT NULL DEFAULT 0,
			growth INTEGER NOT NULL DEFAULT 0,
			total INTEGER NOT NULL DEFAULT 0,
			user_growth_pct REAL NOT NULL DEFAULT 0,
			manual_commits INTEGER,
			manual_launches INTEGER,
			manual_revenue INTEGER,
			manual_growth INTEGER,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS streaks (
			profile_id TEXT PRIMARY KEY,
			current_streak INTEGER NOT NULL DEFAULT 0,
			longest_streak INTEGER NOT NULL DEFAULT 0,
			last_activity_date DATETIME,
			is_on_fire BOOLEAN NOT NULL DEFAULT FALSE,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS global_ranks (
			profile_id TEXT PRIMARY KEY,
			position INTEGER NOT NULL,
			total_users INTEGER NOT NULL,
			percentile REAL NOT NULL,
			tier TEXT NOT NULL,
			updated_at DATETIME NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS commit_events (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			repository TEXT NOT NULL,
			commit_count INTEGER NOT NULL,
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS launch_events (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			name TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS revenue_events (
			id TEXT PRIMARY KEY,
			profile_id TEXT NOT NULL,
			external_id TEXT NOT NULL UNIQUE,
			amount INTEGER NOT NULL,
			currency TEXT NOT NULL,
			occurred_at DATETIME NOT NULL,
			FOREIGN KEY (profile_id) REFERENCES profiles(id) ON DELETE CASCADE
		)`,

		`CREATE TABLE IF NOT EXISTS webhook_deliveries (
			source TEXT NOT NULL,
			delivery_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			received_at DATETIME NOT NULL,
			PRIMARY KEY (source, delivery_id)
		)`,

		`CREATE TABLE IF NOT EXISTS waitlist (
			email TEXT PRIMARY KEY,
			source TEXT NOT NULL DEFAULT '',
			joined_at DATETIME NOT NULL,
			invited_at DATETIME
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ship_scores_total ON ship_scores(total DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_commit_events_profile ON commit_events(profile_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_launch_events_profile ON launch_events(profile_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_revenue_events_profile ON revenue_events(profile_id, occurred_at)`,
		`CREATE INDEX IF NOT EXISTS idx_waitlist_joined ON waitlist(joined_at)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}

	// Databases created before manual overrides existed lack these columns.
	for _, col := range []string{"manual_commits", "manual_launches", "manual_revenue", "manual_growth"} {
		if err := db.addColumnIfMissing("ship_scores", col, "INTEGER"); err != nil {
			return err
		}
	}

	return nil
}

func (db *DB) addColumnIfMissing(table, column, decl string) error {
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`, table, column).Scan(&n); err != nil {
		return fmt.Errorf("failed to inspect %s: %w", table, err)
	}
	if n > 0 {
		return nil
	}
	if _, err := db.Exec(fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, table, column, decl)); err != nil {
		return fmt.Errorf("failed to add %s.%s: %w", table, column, err)
	}
	return nil
}

// initPreparedStatements initializes frequently used prepared statements
func (db *DB) initPreparedStatements() error {
	statements := map[string]string{
		"get_ship_score": `SELECT s.commits, s.launches, s.revenue, s.growth, s.updated_at,
			k.current_streak, k.longest_streak, k.last_activity_date, k.is_on_fire
			FROM ship_scores s JOIN streaks k ON k.profile_id = s.profile_id
			WHERE s.profile_id = ?`,

		"upsert_streak": `INSERT INTO streaks (profile_id, current_streak, longest_streak, last_activity_date, is_on_fire)
			VALUES (?, ?, ?, ?, ?) ON CONFLICT(profile_id) DO UPDATE SET
			current_streak = excluded.current_streak,
			longest_streak = excluded.longest_streak,
			last_activity_date = excluded.last_activity_date,
			is_on_fire = excluded.is_on_fire`,

		"update_breakdown": `UPDATE ship_scores SET commits = ?, launches = ?, revenue = ?, growth = ?, total = ?, updated_at = ?
			WHERE profile_id = ?`,

		"insert_commit_event": `INSERT INTO commit_events (id, profile_id, repository, commit_count, occurred_at)
			VALUES (?, ?, ?, ?, ?)`,

		"mark_delivery": `INSERT OR IGNORE INTO webhook_deliveries (source, delivery_id, event_type, received_at)
			VALUES (?, ?, ?, ?)`,
	}

	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, query := range statements {
		stmt, err := db.Prepare(query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement %s: %w", name, err)
		}
		db.prepared[name] = stmt

		slog.Debug("Prepared statement initialized", "name", name)
	}

	return nil
}

// GetPreparedStatement retrieves a prepared statement
func (db *DB) GetPreparedStatement(name string) (*sql.Stmt, error) {
	db.mutex.RLock()
	defer db.mutex.RUnlock()

	stmt, exists := db.prepared[name]
	if !exists {
		return nil, fmt.Errorf("prepared statement %s not found", name)
	}

	return stmt, nil
}

// WithTx runs fn inside a transaction, rolling back on error.
func (db *DB) WithTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.Warn("Failed to roll back transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// GetPoolStats returns database connection pool statistics
func (db *DB) GetPoolStats() map[string]interface{} {
	return db.pool.GetStats()
}

// Close closes the database connection and prepared statements
func (db *DB) Close() error {
	db.mutex.Lock()
	defer db.mutex.Unlock()

	for name, stmt := range db.prepared {
		if err := stmt.Close(); err != nil {
			slog.Warn("Failed to close prepared statement", "name", name, "error", err)
		}
	}
	db.prepared = make(map[string]*sql.Stmt)

	return db.DB.Close()
}
