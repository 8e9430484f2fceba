package infra

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mutecomm/go-sqlcipher/v4" // registers the "sqlite3" driver with SQLCipher

	"github.com/eliteGoblin/focusd/app_lock/internal/domain"
)

const storeDBName = "applock.db"

const metaBootID = "boot_id"

// EncryptedStore implements the lock configuration store and the daemon
// registry on a SQLCipher encrypted SQLite database.
//
// Sets are stored one row per member in package_sets. Replacing a set
// happens inside one transaction, so readers never see a half-written set.
type EncryptedStore struct {
	db             *sql.DB
	dbPath         string
	processManager domain.ProcessManager
}

// NewEncryptedStore opens (or creates) the encrypted store in dataDir.
// The key is used as the SQLCipher passphrase via PRAGMA key.
func NewEncryptedStore(dataDir string, key []byte, pm domain.ProcessManager) (*EncryptedStore, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	dbPath := filepath.Join(dataDir, storeDBName)
	dsn := fmt.Sprintf("%s?_pragma_key=x'%s'&_pragma_cipher_page_size=4096&_busy_timeout=5000",
		dbPath, hex.EncodeToString(key))
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open encrypted database: %w", err)
	}
	// The UI and the engine write from different goroutines; one connection
	// serializes them instead of surfacing SQLITE_BUSY.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to encrypted database: %w", err)
	}

	s := &EncryptedStore{
		db:             db,
		dbPath:         dbPath,
		processManager: pm,
	}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *EncryptedStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS package_sets (
		set_name TEXT NOT NULL,
		package TEXT NOT NULL,
		PRIMARY KEY (set_name, package)
	);

	CREATE TABLE IF NOT EXISTS settings (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS daemon_state (
		role TEXT PRIMARY KEY,
		pid INTEGER NOT NULL,
		last_heartbeat INTEGER NOT NULL,
		app_version TEXT DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- domain.ConfigStore ---

// LockedSet returns the locked identifiers.
func (s *EncryptedStore) LockedSet(ctx context.Context) ([]domain.AppID, error) {
	return s.readSet(ctx, s.db, domain.KeyLockedPackages)
}

// SetLockedSet replaces the locked identifiers.
func (s *EncryptedStore) SetLockedSet(ctx context.Context, ids []domain.AppID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.replaceSet(ctx, tx, domain.KeyLockedPackages, ids)
	})
}

// ProtectSelf returns the settings protection flag, true when never set.
func (s *EncryptedStore) ProtectSelf(ctx context.Context) (bool, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`,
		domain.KeyProtectInSettings).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	enabled, err := strconv.ParseBool(value)
	if err != nil {
		return true, fmt.Errorf("invalid %s value %q: %w", domain.KeyProtectInSettings, value, err)
	}
	return enabled, nil
}

// SetProtectSelf stores the settings protection flag.
func (s *EncryptedStore) SetProtectSelf(ctx context.Context, enabled bool) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO settings (key, value, updated_at) VALUES (?, ?, ?)`,
		domain.KeyProtectInSettings, strconv.FormatBool(enabled), time.Now().Unix())
	return err
}

// --- domain.AllowanceStore ---

// LoadAllowances returns the allowed and user-left sets.
func (s *EncryptedStore) LoadAllowances(ctx context.Context) (allowed, left []domain.AppID, err error) {
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		if allowed, err = s.readSet(ctx, tx, domain.KeyAllowedPackages); err != nil {
			return err
		}
		left, err = s.readSet(ctx, tx, domain.KeyUserLeftPackages)
		return err
	})
	return allowed, left, err
}

// SaveAllowances replaces both sets in a single transaction.
func (s *EncryptedStore) SaveAllowances(ctx context.Context, allowed, left []domain.AppID) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := s.replaceSet(ctx, tx, domain.KeyAllowedPackages, allowed); err != nil {
			return err
		}
		return s.replaceSet(ctx, tx, domain.KeyUserLeftPackages, left)
	})
}

// --- domain.BootRecorder ---

// BootID returns the boot the persisted allowances belong to ("" if unknown).
func (s *EncryptedStore) BootID(ctx context.Context) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaBootID).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// SetBootID records the current boot.
func (s *EncryptedStore) SetBootID(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)`, metaBootID, id)
	return err
}

// --- domain.DaemonRegistry ---

// Register saves the daemon's PID under its role.
func (s *EncryptedStore) Register(ctx context.Context, daemon domain.Daemon) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO daemon_state (role, pid, last_heartbeat, app_version)
		VALUES (?, ?, ?, ?)`,
		string(daemon.Role), daemon.PID, time.Now().Unix(), daemon.AppVersion,
	)
	return err
}

// GetPartner returns the partner daemon info (watcher<->guardian).
func (s *EncryptedStore) GetPartner(ctx context.Context, role domain.DaemonRole) (*domain.Daemon, error) {
	partnerRole := domain.RoleWatcher
	if role == domain.RoleWatcher {
		partnerRole = domain.RoleGuardian
	}

	var pid int
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT pid, app_version FROM daemon_state WHERE role = ?`,
		string(partnerRole)).Scan(&pid, &version)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && pid == 0) {
		return nil, fmt.Errorf("partner %s: %w", partnerRole, domain.ErrNotRegistered)
	}
	if err != nil {
		return nil, err
	}
	return &domain.Daemon{PID: pid, Role: partnerRole, AppVersion: version}, nil
}

// UpdateHeartbeat updates timestamp for liveness check.
func (s *EncryptedStore) UpdateHeartbeat(ctx context.Context, role domain.DaemonRole) error {
	result, err := s.db.ExecContext(ctx, `UPDATE daemon_state SET last_heartbeat = ? WHERE role = ?`,
		time.Now().Unix(), string(role))
	if err != nil {
		return err
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("daemon %s: %w", role, domain.ErrNotRegistered)
	}
	return nil
}

// IsPartnerAlive checks if partner daemon is running via PID.
func (s *EncryptedStore) IsPartnerAlive(ctx context.Context, role domain.DaemonRole) (bool, error) {
	partner, err := s.GetPartner(ctx, role)
	if err != nil {
		return false, err
	}
	return s.processManager.IsRunning(partner.PID), nil
}

// GetAll returns full registry state, or nil when no daemon registered.
func (s *EncryptedStore) GetAll(ctx context.Context) (*domain.RegistryEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, pid, last_heartbeat, app_version FROM daemon_state`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entry := &domain.RegistryEntry{}
	found := false
	for rows.Next() {
		var role, version string
		var pid int
		var heartbeat int64
		if err := rows.Scan(&role, &pid, &heartbeat, &version); err != nil {
			return nil, err
		}
		found = true
		switch domain.DaemonRole(role) {
		case domain.RoleWatcher:
			entry.WatcherPID = pid
			entry.AppVersion = version
		case domain.RoleGuardian:
			entry.GuardianPID = pid
		}
		if heartbeat > entry.LastHeartbeat {
			entry.LastHeartbeat = heartbeat
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return entry, nil
}

// Path returns the database file path.
func (s *EncryptedStore) Path() string {
	return s.dbPath
}

// Close releases the database connection.
func (s *EncryptedStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// --- helpers ---

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *EncryptedStore) readSet(ctx context.Context, q querier, name string) ([]domain.AppID, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT package FROM package_sets WHERE set_name = ? ORDER BY package`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	ids := make([]domain.AppID, 0)
	for rows.Next() {
		var pkg string
		if err := rows.Scan(&pkg); err != nil {
			return nil, err
		}
		ids = append(ids, domain.AppID(pkg))
	}
	return ids, rows.Err()
}

func (s *EncryptedStore) replaceSet(ctx context.Context, tx *sql.Tx, name string, ids []domain.AppID) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM package_sets WHERE set_name = ?`, name); err != nil {
		return err
	}
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO package_sets (set_name, package) VALUES (?, ?)`, name, string(id)); err != nil {
			return err
		}
	}
	return nil
}

func (s *EncryptedStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Ensure EncryptedStore implements the store interfaces.
var (
	_ domain.ConfigStore    = (*EncryptedStore)(nil)
	_ domain.AllowanceStore = (*EncryptedStore)(nil)
	_ domain.BootRecorder   = (*EncryptedStore)(nil)
	_ domain.DaemonRegistry = (*EncryptedStore)(nil)
)
