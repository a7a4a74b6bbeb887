// Package sqlite implements store.Store on SQLite through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/pkg/errors"

	// Import the SQLite driver.
	_ "modernc.org/sqlite"

	"github.com/fyrsmithlabs/vecfs/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS profile_internals (
	profile          TEXT PRIMARY KEY,
	core             BLOB NOT NULL,
	permissions      BLOB NOT NULL,
	subscriptions    BLOB NOT NULL,
	supported_models BLOB NOT NULL,
	last_read        BLOB NOT NULL,
	updated_ts       INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS resources (
	profile TEXT NOT NULL,
	key     TEXT NOT NULL,
	data    BLOB NOT NULL,
	PRIMARY KEY (profile, key)
);
CREATE TABLE IF NOT EXISTS source_file_maps (
	profile TEXT NOT NULL,
	key     TEXT NOT NULL,
	data    BLOB NOT NULL,
	PRIMARY KEY (profile, key)
);
CREATE TABLE IF NOT EXISTS access_logs (
	id        INTEGER PRIMARY KEY AUTOINCREMENT,
	profile   TEXT NOT NULL,
	requester TEXT NOT NULL,
	path      TEXT NOT NULL,
	kind      TEXT NOT NULL,
	ts        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_access_logs_profile ON access_logs (profile, id);
`

// DB is a SQLite-backed store.
type DB struct {
	db *sql.DB
}

var _ store.Store = (*DB)(nil)

// Open opens or creates the database at dsn and applies the schema.
func Open(ctx context.Context, dsn string) (*DB, error) {
	if dsn == "" {
		return nil, errors.Wrap(store.ErrInvalidConfig, "dsn required")
	}

	// - No foreign key constraints: the schema has none, be explicit anyway.
	// - busy_timeout lets a second process wait instead of failing.
	// - WAL journal keeps readers unblocked during snapshot writes.
	//
	// modernc.org/sqlite requires each pragma to be prefixed with `_pragma=`.
	sqliteDB, err := sql.Open("sqlite", dsn+"?_pragma=foreign_keys(0)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open db with dsn: %s", dsn)
	}

	// Single connection: SQLite serializes writers anyway.
	sqliteDB.SetMaxOpenConns(1)
	sqliteDB.SetMaxIdleConns(1)
	sqliteDB.SetConnMaxLifetime(0)
	sqliteDB.SetConnMaxIdleTime(0)

	if _, err := sqliteDB.ExecContext(ctx, schema); err != nil {
		_ = sqliteDB.Close()
		return nil, errors.Wrap(err, "failed to apply schema")
	}
	return &DB{db: sqliteDB}, nil
}

// GetDB exposes the underlying handle.
func (d *DB) GetDB() *sql.DB {
	return d.db
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// SaveProfileFSInternals overwrites the snapshot of profile.
func (d *DB) SaveProfileFSInternals(ctx context.Context, profile string, blob store.ProfileBlob) error {
	return d.Commit(ctx, profile, store.Batch{Internals: &blob})
}

// GetProfileFSInternals returns the snapshot of profile.
func (d *DB) GetProfileFSInternals(ctx context.Context, profile string) (store.ProfileBlob, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return store.ProfileBlob{}, err
	}
	var blob store.ProfileBlob
	err := d.db.QueryRowContext(ctx, `
		SELECT core, permissions, subscriptions, supported_models, last_read
		FROM profile_internals WHERE profile = ?`, profile,
	).Scan(&blob.Core, &blob.Permissions, &blob.Subscriptions, &blob.SupportedModels, &blob.LastRead)
	if errors.Is(err, sql.ErrNoRows) {
		return store.ProfileBlob{}, store.ErrNotFound
	}
	if err != nil {
		return store.ProfileBlob{}, errors.Wrapf(err, "failed to get internals of profile %s", profile)
	}
	return blob, nil
}

// Commit applies b in one transaction.
func (d *DB) Commit(ctx context.Context, profile string, b store.Batch) error {
	if err := store.ValidateKeys(profile); err != nil {
		return err
	}
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback() }()

	if b.Internals != nil {
		in := b.Internals
		_, err := tx.ExecContext(ctx, `
			INSERT INTO profile_internals (profile, core, permissions, subscriptions, supported_models, last_read, updated_ts)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (profile) DO UPDATE SET
				core = excluded.core,
				permissions = excluded.permissions,
				subscriptions = excluded.subscriptions,
				supported_models = excluded.supported_models,
				last_read = excluded.last_read,
				updated_ts = excluded.updated_ts`,
			profile, nonNil(in.Core), nonNil(in.Permissions), nonNil(in.Subscriptions),
			nonNil(in.SupportedModels), nonNil(in.LastRead), time.Now().Unix(),
		)
		if err != nil {
			return errors.Wrapf(err, "failed to save internals of profile %s", profile)
		}
	}
	if err := applyRecords(ctx, tx, "resources", profile, b.Resources); err != nil {
		return err
	}
	if err := applyRecords(ctx, tx, "source_file_maps", profile, b.SourceFileMaps); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// applyRecords writes or deletes keyed blobs in table. table is one of the
// two fixed names above.
func applyRecords(ctx context.Context, tx *sql.Tx, table, profile string, writes map[string][]byte) error {
	for key, data := range writes {
		if key == "" {
			return store.ErrInvalidKey
		}
		if data == nil {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE profile = ? AND key = ?`, profile, key); err != nil {
				return errors.Wrapf(err, "failed to delete %s %s", table, key)
			}
			continue
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO `+table+` (profile, key, data) VALUES (?, ?, ?)
			ON CONFLICT (profile, key) DO UPDATE SET data = excluded.data`,
			profile, key, data,
		)
		if err != nil {
			return errors.Wrapf(err, "failed to save %s %s", table, key)
		}
	}
	return nil
}

func (d *DB) getRecord(ctx context.Context, table, profile, key string) ([]byte, error) {
	if err := store.ValidateKeys(profile, key); err != nil {
		return nil, err
	}
	var data []byte
	err := d.db.QueryRowContext(ctx, `SELECT data FROM `+table+` WHERE profile = ? AND key = ?`, profile, key).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to get %s %s", table, key)
	}
	return data, nil
}

// GetResource returns the resource stored under key.
func (d *DB) GetResource(ctx context.Context, profile, key string) ([]byte, error) {
	return d.getRecord(ctx, "resources", profile, key)
}

// GetSourceFileMap returns the source file map stored under key.
func (d *DB) GetSourceFileMap(ctx context.Context, profile, key string) ([]byte, error) {
	return d.getRecord(ctx, "source_file_maps", profile, key)
}

// AddAccessLog appends entry.
func (d *DB) AddAccessLog(ctx context.Context, profile string, entry store.AccessLog) error {
	if err := store.ValidateKeys(profile); err != nil {
		return err
	}
	_, err := d.db.ExecContext(ctx, `
		INSERT INTO access_logs (profile, requester, path, kind, ts) VALUES (?, ?, ?, ?, ?)`,
		profile, entry.Requester, entry.Path, string(entry.Kind), entry.Time.UnixNano(),
	)
	if err != nil {
		return errors.Wrap(err, "failed to add access log")
	}
	return nil
}

// ListAccessLogs returns the newest entries first.
func (d *DB) ListAccessLogs(ctx context.Context, profile string, limit int) ([]store.AccessLog, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return nil, err
	}
	query := `SELECT requester, path, kind, ts FROM access_logs WHERE profile = ? ORDER BY id DESC`
	args := []any{profile}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "failed to list access logs")
	}
	defer rows.Close()

	var logs []store.AccessLog
	for rows.Next() {
		var (
			entry store.AccessLog
			kind  string
			ts    int64
		)
		if err := rows.Scan(&entry.Requester, &entry.Path, &kind, &ts); err != nil {
			return nil, errors.Wrap(err, "failed to scan access log")
		}
		entry.Kind = store.AccessKind(kind)
		entry.Time = time.Unix(0, ts).UTC()
		logs = append(logs, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return logs, nil
}

// TrimAccessLogs deletes every entry older than the newest keep.
func (d *DB) TrimAccessLogs(ctx context.Context, profile string, keep int) (int, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return 0, err
	}
	if keep <= 0 {
		return 0, nil
	}
	res, err := d.db.ExecContext(ctx, `
		DELETE FROM access_logs WHERE profile = ? AND id <= (
			SELECT id FROM access_logs WHERE profile = ? ORDER BY id DESC LIMIT 1 OFFSET ?
		)`, profile, profile, keep)
	if err != nil {
		return 0, errors.Wrap(err, "failed to trim access logs")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to count trimmed access logs")
	}
	return int(n), nil
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
