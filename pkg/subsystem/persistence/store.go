// Package persistence is the BadgerDB-backed persistence sub-context of the
// embedded subsystem.
//
// Opening the database happens in the background: Open returns immediately
// and AwaitReady reports when startup has finished. Every successful startup
// bumps a boot counter persisted in the database.
package persistence

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/marmos91/dittofs-embedded/internal/logger"
	"github.com/marmos91/dittofs-embedded/pkg/config"
	"github.com/marmos91/dittofs-embedded/pkg/metrics"
)

var (
	keyBootCount = []byte("sys/boot_count")
	keyNodeID    = []byte("sys/node_id")
	keyLastBoot  = []byte("sys/last_boot")
)

// ErrNotReady is returned by Healthcheck while startup is still running.
var ErrNotReady = errors.New("persistence not ready")

// Options configures a Store.
type Options struct {
	Dir        string
	InMemory   bool
	SyncWrites bool
	Tuning     config.TuningConfig
	NodeID     string
	Metrics    *metrics.StorageMetrics
}

// OptionsFromConfig builds Options from the persistence and tuning sections.
func OptionsFromConfig(cfg *config.Config, nodeID string, m *metrics.StorageMetrics) Options {
	return Options{
		Dir:        cfg.Persistence.Dir,
		InMemory:   cfg.Persistence.InMemory,
		SyncWrites: cfg.Persistence.SyncWrites,
		Tuning:     cfg.Tuning,
		NodeID:     nodeID,
		Metrics:    m,
	}
}

// Store owns a BadgerDB instance.
type Store struct {
	opts Options

	ready     chan struct{}
	db        *badgerdb.DB
	err       error
	bootCount uint64

	closeOnce sync.Once
	closeErr  error
}

// Open starts opening the database in the background and returns immediately.
func Open(opts Options) *Store {
	s := &Store{
		opts:  opts,
		ready: make(chan struct{}),
	}
	go s.start()
	return s
}

func (s *Store) start() {
	defer close(s.ready)

	start := time.Now()
	db, err := badgerdb.Open(s.badgerOptions())
	if err != nil {
		s.err = fmt.Errorf("failed to open badger database: %w", err)
		logger.Error("Persistence startup failed", logger.KeyDir, s.opts.Dir, logger.Err(s.err))
		return
	}

	count, err := recordBoot(db, s.opts.NodeID, start)
	if err != nil {
		_ = db.Close()
		s.err = fmt.Errorf("failed to record boot: %w", err)
		logger.Error("Persistence startup failed", logger.KeyDir, s.opts.Dir, logger.Err(s.err))
		return
	}

	s.db = db
	s.bootCount = count
	s.opts.Metrics.RecordBootCount(count)
	s.opts.Metrics.SetReady(true)
	s.recordSize()

	logger.Info("Persistence ready",
		logger.KeyDir, s.opts.Dir,
		logger.KeyInMemory, s.opts.InMemory,
		logger.KeyBootCount, count,
		logger.DurationMs(start))
}

func (s *Store) badgerOptions() badgerdb.Options {
	dir := s.opts.Dir
	if s.opts.InMemory {
		dir = ""
	}

	opts := badgerdb.DefaultOptions(dir).
		WithInMemory(s.opts.InMemory).
		WithSyncWrites(s.opts.SyncWrites).
		WithLogger(badgerLogger{})

	t := s.opts.Tuning
	if t.NumCompactors > 0 {
		opts = opts.WithNumCompactors(t.NumCompactors)
	}
	if t.NumMemtables > 0 {
		opts = opts.WithNumMemtables(t.NumMemtables)
	}
	if t.MemTableSize > 0 {
		opts = opts.WithMemTableSize(int64(t.MemTableSize))
	}
	if t.BlockCacheSize > 0 {
		opts = opts.WithBlockCacheSize(int64(t.BlockCacheSize))
	}
	return opts
}

// recordBoot increments the persisted boot counter and stores the node identity.
func recordBoot(db *badgerdb.DB, nodeID string, at time.Time) (uint64, error) {
	var count uint64
	err := db.Update(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyBootCount)
		switch {
		case err == nil:
			if err := item.Value(func(val []byte) error {
				if len(val) != 8 {
					return fmt.Errorf("corrupt boot counter: %d bytes", len(val))
				}
				count = binary.BigEndian.Uint64(val)
				return nil
			}); err != nil {
				return err
			}
		case errors.Is(err, badgerdb.ErrKeyNotFound):
		default:
			return err
		}

		count++
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, count)
		if err := txn.Set(keyBootCount, buf); err != nil {
			return err
		}
		if nodeID != "" {
			if err := txn.Set(keyNodeID, []byte(nodeID)); err != nil {
				return err
			}
		}
		return txn.Set(keyLastBoot, []byte(at.UTC().Format(time.RFC3339Nano)))
	})
	return count, err
}

// AwaitReady blocks until startup has finished or ctx is done.
// It returns the startup error, if any.
func (s *Store) AwaitReady(ctx context.Context) error {
	select {
	case <-s.ready:
		return s.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Store) isReady() bool {
	select {
	case <-s.ready:
		return true
	default:
		return false
	}
}

// Healthcheck verifies the database can serve a read transaction.
func (s *Store) Healthcheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.isReady() {
		return ErrNotReady
	}
	if s.err != nil {
		return s.err
	}

	if err := s.db.View(func(*badgerdb.Txn) error { return nil }); err != nil {
		return fmt.Errorf("healthcheck failed: %w", err)
	}
	return nil
}

// BootCount returns the persisted boot counter, or 0 before startup completed.
func (s *Store) BootCount() uint64 {
	if !s.isReady() {
		return 0
	}
	return s.bootCount
}

// NodeID returns the node identity stored at the last boot.
func (s *Store) NodeID() (string, error) {
	if err := s.AwaitReady(context.Background()); err != nil {
		return "", err
	}
	var id string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyNodeID)
		if err != nil {
			return err
		}
		val, err := item.ValueCopy(nil)
		id = string(val)
		return err
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return "", nil
	}
	return id, err
}

// DB returns the underlying database, or nil if startup has not succeeded.
func (s *Store) DB() *badgerdb.DB {
	if !s.isReady() {
		return nil
	}
	return s.db
}

// Sync flushes pending writes to disk. It is a no-op for in-memory stores.
func (s *Store) Sync() error {
	db := s.DB()
	if db == nil || s.opts.InMemory || db.IsClosed() {
		return nil
	}
	s.recordSize()
	if err := db.Sync(); err != nil {
		return fmt.Errorf("failed to sync badger database: %w", err)
	}
	return nil
}

// Close waits for startup to finish and closes the database. Safe to call
// more than once; later calls return the first result.
func (s *Store) Close() error {
	s.closeOnce.Do(func() {
		<-s.ready
		s.opts.Metrics.SetReady(false)
		if s.db == nil {
			return
		}
		if err := s.db.Close(); err != nil {
			s.closeErr = fmt.Errorf("failed to close badger database: %w", err)
			return
		}
		logger.Debug("Persistence closed", logger.KeyDir, s.opts.Dir)
	})
	return s.closeErr
}

func (s *Store) recordSize() {
	if s.db == nil || s.opts.Metrics == nil {
		return
	}
	lsm, vlog := s.db.Size()
	s.opts.Metrics.RecordSize(lsm, vlog)
}
