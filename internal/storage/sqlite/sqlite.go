package sqlite

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"clipit/internal/logging"
	"clipit/internal/storage"
	"clipit/pkg/types"
)

const defaultBusyTimeout = 5 * time.Second

// Conn is a single storage handle backed by its own one-connection pool.
// It is owned by one goroutine at a time.
type Conn struct {
	db     *gorm.DB
	closed atomic.Bool
	once   sync.Once
	err    error
}

// Engine owns the primary handle and every handle opened through it
type Engine struct {
	*Conn
	config storage.Config
	log    *slog.Logger

	mu    sync.Mutex
	conns []*Conn
}

// New opens the database, applies pending migrations and returns the engine
func New(ctx context.Context, config storage.Config) (*Engine, error) {
	if config.BusyTimeout <= 0 {
		config.BusyTimeout = defaultBusyTimeout
	}
	if dir := filepath.Dir(config.DBPath); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	log := config.Logger
	if log == nil {
		log = slog.Default()
	}
	e := &Engine{
		config: config,
		log:    logging.Component(log, "storage"),
	}

	db, err := e.open()
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	if err := runMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	limitPool(sqlDB)

	e.Conn = &Conn{db: db}
	e.log.Debug("storage opened", "path", config.DBPath)
	return e, nil
}

func (e *Engine) open() (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_journal_mode=WAL",
		e.config.DBPath, e.config.BusyTimeout.Milliseconds())

	gormLogger := logger.Discard
	if e.config.Debug {
		gormLogger = logger.New(slogWriter{e.log}, logger.Config{
			SlowThreshold: 200 * time.Millisecond,
			LogLevel:      logger.Warn,
		})
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// OpenConn opens an independent handle for use by another goroutine. The
// engine closes it on Close if the caller has not.
func (e *Engine) OpenConn() (*Conn, error) {
	if e.Conn.closed.Load() {
		return nil, storage.ErrClosed
	}

	db, err := e.open()
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	limitPool(sqlDB)

	conn := &Conn{db: db}
	e.mu.Lock()
	e.conns = append(e.conns, conn)
	e.mu.Unlock()
	return conn, nil
}

// Close closes every handle opened through the engine, then the primary
func (e *Engine) Close() error {
	e.mu.Lock()
	conns := e.conns
	e.conns = nil
	e.mu.Unlock()

	var errs []error
	for _, c := range conns {
		errs = append(errs, c.Close())
	}
	errs = append(errs, e.Conn.Close())
	return errors.Join(errs...)
}

// Path returns the database file path
func (e *Engine) Path() string {
	return e.config.DBPath
}

// SQLite allows one writer at a time, one connection per handle keeps a
// handle's statements serialized.
func limitPool(db interface {
	SetMaxOpenConns(int)
	SetMaxIdleConns(int)
}) {
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
}

func (c *Conn) session(ctx context.Context) (*gorm.DB, error) {
	if c.closed.Load() {
		return nil, storage.ErrClosed
	}
	return c.db.WithContext(ctx), nil
}

// Insert implements storage.Querier
func (c *Conn) Insert(ctx context.Context, entry types.Entry) error {
	db, err := c.session(ctx)
	if err != nil {
		return err
	}

	model := storage.FromEntry(entry)
	model.ID = 0
	if err := db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	return nil
}

// Save implements storage.Querier
func (c *Conn) Save(ctx context.Context, entry *types.Entry) error {
	db, err := c.session(ctx)
	if err != nil {
		return err
	}

	model := storage.FromEntry(*entry)
	if entry.ID != 0 {
		err := db.Model(&storage.EntryModel{}).
			Where(storage.ColumnID+" = ?", entry.ID).
			Updates(model.Columns()).Error
		if err != nil {
			return fmt.Errorf("failed to update entry %d: %w", entry.ID, err)
		}
		return nil
	}

	if err := db.Create(model).Error; err != nil {
		return fmt.Errorf("failed to insert entry: %w", err)
	}
	entry.ID = model.ID
	return nil
}

// Fetch implements storage.Querier
func (c *Conn) Fetch(ctx context.Context, filter storage.Filter) (*storage.ResultSet, error) {
	db, err := c.session(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&storage.EntryModel{})
	for _, clause := range filter.Clauses() {
		query = query.Where(clause.Column+" = ?", clause.Value)
	}

	var models []storage.EntryModel
	if err := query.Order(storage.ColumnID + " ASC").Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch entries: %w", err)
	}

	entries, err := toEntries(models)
	if err != nil {
		return nil, err
	}
	return storage.NewResultSet(c, filter, entries), nil
}

// Latest returns the most recently inserted entry
func (c *Conn) Latest(ctx context.Context) (types.Entry, error) {
	db, err := c.session(ctx)
	if err != nil {
		return types.Entry{}, err
	}

	var models []storage.EntryModel
	if err := db.Order(storage.ColumnID + " DESC").Limit(1).Find(&models).Error; err != nil {
		return types.Entry{}, fmt.Errorf("failed to fetch latest entry: %w", err)
	}
	if len(models) == 0 {
		return types.Entry{}, storage.ErrNotFound
	}
	return models[0].ToEntry()
}

// Count returns the number of rows
func (c *Conn) Count(ctx context.Context) (int64, error) {
	db, err := c.session(ctx)
	if err != nil {
		return 0, err
	}

	var n int64
	if err := db.Model(&storage.EntryModel{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return n, nil
}

// Delete implements storage.Querier. Deleting an id that no longer exists
// affects no rows and is not an error.
func (c *Conn) Delete(ctx context.Context, entry types.Entry) error {
	if entry.IsNew() {
		return nil
	}
	db, err := c.session(ctx)
	if err != nil {
		return err
	}

	if err := db.Where(storage.ColumnID+" = ?", entry.ID).Delete(&storage.EntryModel{}).Error; err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", entry.ID, err)
	}

	if path := entry.ImagePath(); path != "" {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to delete image file: %w", err)
		}
	}
	return nil
}

// Close implements storage.Querier and may be called more than once
func (c *Conn) Close() error {
	c.once.Do(func() {
		c.closed.Store(true)
		sqlDB, err := c.db.DB()
		if err != nil {
			c.err = err
			return
		}
		c.err = sqlDB.Close()
	})
	return c.err
}

func toEntries(models []storage.EntryModel) ([]types.Entry, error) {
	entries := make([]types.Entry, 0, len(models))
	for i := range models {
		entry, err := models[i].ToEntry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...interface{}) {
	w.log.Debug(fmt.Sprintf(format, args...))
}
