// Package sqlstore implements the store interfaces on gorm. SQLite is the
// bundled driver; any gorm dialect with unique-index support works.
package sqlstore

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/mahaj/groupchat/pkg/model"
	"github.com/mahaj/groupchat/pkg/store"
)

// Store satisfies store.Groups, store.Memberships, store.Messages,
// store.Notifications and store.Preferences.
type Store struct {
	db *gorm.DB
}

var (
	_ store.Groups        = (*Store)(nil)
	_ store.Memberships   = (*Store)(nil)
	_ store.Messages      = (*Store)(nil)
	_ store.Notifications = (*Store)(nil)
	_ store.Preferences   = (*Store)(nil)
)

// Open connects to a SQLite database at dsn and migrates the schema.
// Use "file:<name>?mode=memory&cache=shared" for an in-memory database
// shared by every connection of the pool.
func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %q: %w", dsn, err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serialises writers; one connection avoids "database is locked".
	sqlDB.SetMaxOpenConns(1)

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already migrated gorm handle.
func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// AllModels returns every persisted model in migration order.
func AllModels() []interface{} {
	return []interface{}{
		&model.Group{},
		&model.Role{},
		&model.Membership{},
		&model.KeyStorage{},
		&model.Message{},
		&model.Reaction{},
		&model.Notification{},
		&model.UserPrefs{},
	}
}

// Migrate runs gorm auto-migration for all models.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// translate maps gorm errors onto the store sentinels.
func translate(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return store.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey),
		strings.Contains(err.Error(), "UNIQUE constraint failed"):
		return fmt.Errorf("%w: %v", store.ErrDuplicate, err)
	}
	return err
}

type validator interface {
	Validate() error
}

func checkAll[T any, P interface {
	*T
	validator
}](items []T) error {
	for i := range items {
		if err := P(&items[i]).Validate(); err != nil {
			return fmt.Errorf("sqlstore: stored record rejected: %w", err)
		}
	}
	return nil
}

func check(v validator) error {
	if err := v.Validate(); err != nil {
		return fmt.Errorf("sqlstore: stored record rejected: %w", err)
	}
	return nil
}

func applyPage(q *gorm.DB, p store.Page) *gorm.DB {
	if p.Offset > 0 {
		q = q.Offset(p.Offset)
	}
	if p.Limit > 0 {
		q = q.Limit(p.Limit)
	}
	return q
}
