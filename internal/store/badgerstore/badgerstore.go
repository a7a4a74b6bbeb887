// Package badgerstore implements store.Store on an embedded Badger key-value
// database.
//
// Key layout:
//
//	int/<profile>              JSON encoded ProfileBlob
//	res/<profile>/<key>        vector resource
//	sfm/<profile>/<key>        source file map
//	log/<profile>/<seq>        JSON encoded AccessLog, seq big-endian
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/vecfs/internal/store"
)

// Config configures the Badger store.
type Config struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path string

	// InMemory runs Badger without touching disk.
	InMemory bool
}

// DB is a Badger-backed store.
type DB struct {
	db     *badger.DB
	seq    *badger.Sequence
	logger *zap.Logger
}

var _ store.Store = (*DB)(nil)

// Open opens or creates the database.
func Open(cfg Config, logger *zap.Logger) (*DB, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Path == "" && !cfg.InMemory {
		return nil, fmt.Errorf("%w: badger path required", store.ErrInvalidConfig)
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = badgerLogger{logger.Named("badger").Sugar()}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("opening badger at %s: %w", cfg.Path, err)
	}
	seq, err := db.GetSequence([]byte("seq/access_logs"), 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating access log sequence: %w", err)
	}
	return &DB{db: db, seq: seq, logger: logger}, nil
}

// Close releases the sequence and closes the database.
func (d *DB) Close() error {
	if err := d.seq.Release(); err != nil {
		d.logger.Warn("releasing access log sequence", zap.Error(err))
	}
	return d.db.Close()
}

func internalsKey(profile string) []byte {
	return []byte("int/" + profile)
}

func recordKey(kind, profile, key string) []byte {
	return []byte(kind + "/" + profile + "/" + key)
}

func logPrefix(profile string) []byte {
	return []byte("log/" + profile + "/")
}

// SaveProfileFSInternals overwrites the snapshot of profile.
func (d *DB) SaveProfileFSInternals(ctx context.Context, profile string, blob store.ProfileBlob) error {
	return d.Commit(ctx, profile, store.Batch{Internals: &blob})
}

// GetProfileFSInternals returns the snapshot of profile.
func (d *DB) GetProfileFSInternals(_ context.Context, profile string) (store.ProfileBlob, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return store.ProfileBlob{}, err
	}
	raw, err := d.get(internalsKey(profile))
	if err != nil {
		return store.ProfileBlob{}, err
	}
	var blob store.ProfileBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return store.ProfileBlob{}, fmt.Errorf("decoding internals of profile %s: %w", profile, err)
	}
	return blob, nil
}

// Commit applies b in one read-write transaction.
func (d *DB) Commit(ctx context.Context, profile string, b store.Batch) error {
	if err := store.ValidateKeys(profile); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	var internals []byte
	if b.Internals != nil {
		var err error
		if internals, err = json.Marshal(b.Internals); err != nil {
			return fmt.Errorf("encoding internals of profile %s: %w", profile, err)
		}
	}

	err := d.db.Update(func(txn *badger.Txn) error {
		if internals != nil {
			if err := txn.Set(internalsKey(profile), internals); err != nil {
				return err
			}
		}
		if err := applyRecords(txn, "res", profile, b.Resources); err != nil {
			return err
		}
		return applyRecords(txn, "sfm", profile, b.SourceFileMaps)
	})
	if err != nil {
		return fmt.Errorf("committing batch for profile %s: %w", profile, err)
	}
	return nil
}

func applyRecords(txn *badger.Txn, kind, profile string, writes map[string][]byte) error {
	for key, data := range writes {
		if key == "" {
			return store.ErrInvalidKey
		}
		k := recordKey(kind, profile, key)
		if data == nil {
			if err := txn.Delete(k); err != nil {
				return err
			}
			continue
		}
		if err := txn.Set(k, data); err != nil {
			return err
		}
	}
	return nil
}

func (d *DB) get(key []byte) ([]byte, error) {
	var out []byte
	err := d.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		out, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	return out, nil
}

// GetResource returns the resource stored under key.
func (d *DB) GetResource(_ context.Context, profile, key string) ([]byte, error) {
	if err := store.ValidateKeys(profile, key); err != nil {
		return nil, err
	}
	return d.get(recordKey("res", profile, key))
}

// GetSourceFileMap returns the source file map stored under key.
func (d *DB) GetSourceFileMap(_ context.Context, profile, key string) ([]byte, error) {
	if err := store.ValidateKeys(profile, key); err != nil {
		return nil, err
	}
	return d.get(recordKey("sfm", profile, key))
}

// AddAccessLog appends entry under the next sequence number.
func (d *DB) AddAccessLog(_ context.Context, profile string, entry store.AccessLog) error {
	if err := store.ValidateKeys(profile); err != nil {
		return err
	}
	n, err := d.seq.Next()
	if err != nil {
		return fmt.Errorf("next access log sequence: %w", err)
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encoding access log: %w", err)
	}
	key := binary.BigEndian.AppendUint64(logPrefix(profile), n)
	return d.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// ListAccessLogs returns the newest entries first.
func (d *DB) ListAccessLogs(_ context.Context, profile string, limit int) ([]store.AccessLog, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return nil, err
	}
	prefix := logPrefix(profile)
	var logs []store.AccessLog
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), prefix...), 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(v []byte) error {
				var entry store.AccessLog
				if err := json.Unmarshal(v, &entry); err != nil {
					return err
				}
				logs = append(logs, entry)
				return nil
			})
			if err != nil {
				return err
			}
			if limit > 0 && len(logs) == limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("listing access logs: %w", err)
	}
	return logs, nil
}

// TrimAccessLogs deletes every entry older than the newest keep. Sequence
// numbers only grow, so key order is age order.
func (d *DB) TrimAccessLogs(_ context.Context, profile string, keep int) (int, error) {
	if err := store.ValidateKeys(profile); err != nil {
		return 0, err
	}
	if keep <= 0 {
		return 0, nil
	}
	prefix := logPrefix(profile)
	var keys [][]byte
	err := d.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("listing access log keys: %w", err)
	}
	if len(keys) <= keep {
		return 0, nil
	}
	stale := keys[:len(keys)-keep]

	wb := d.db.NewWriteBatch()
	for _, k := range stale {
		if err := wb.Delete(k); err != nil {
			wb.Cancel()
			return 0, fmt.Errorf("trimming access logs: %w", err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("trimming access logs: %w", err)
	}
	return len(stale), nil
}

// badgerLogger routes Badger's logs through zap.
type badgerLogger struct {
	*zap.SugaredLogger
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.Warnf(format, args...)
}
