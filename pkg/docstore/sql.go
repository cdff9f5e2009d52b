package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// SQLStore keeps documents in a SQLite database through GORM.
type SQLStore struct {
	db *gorm.DB
}

var _ Store = (*SQLStore)(nil)

type cacheEntry struct {
	Collection string `gorm:"primaryKey"`
	Key        string `gorm:"primaryKey;column:doc_key"`
	Value      string
	Moment     time.Time
}

type userRecord struct {
	ID        string `gorm:"primaryKey"`
	Email     string
	CreatedAt time.Time
}

func (userRecord) TableName() string { return "user" }

type apiKeyRecord struct {
	ID        string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	Hash      string `gorm:"uniqueIndex"`
	Name      string
	CreatedAt time.Time
	ExpiresAt time.Time
}

func (apiKeyRecord) TableName() string { return "api_key" }

// OpenSQLite opens (creating if needed) the database at path and migrates
// its tables.
func OpenSQLite(path string) (*SQLStore, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
		PrepareStmt:            true,
		SkipDefaultTransaction: true,
		Logger:                 gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&cacheEntry{}, &userRecord{}, &apiKeyRecord{}); err != nil {
		return nil, fmt.Errorf("migrate %s: %w", path, err)
	}
	return &SQLStore{db: db}, nil
}

func notFound(err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func (s *SQLStore) Get(ctx context.Context, coll Collection, key string) (*Entry, error) {
	var row cacheEntry
	err := s.db.WithContext(ctx).
		Where(&cacheEntry{Collection: string(coll), Key: key}).
		First(&row).Error
	if err != nil {
		return nil, notFound(err, string(coll)+"/"+key)
	}
	return &Entry{Key: row.Key, Value: row.Value, Moment: row.Moment.UTC()}, nil
}

func (s *SQLStore) Put(ctx context.Context, coll Collection, e Entry) error {
	row := cacheEntry{Collection: string(coll), Key: e.Key, Value: e.Value, Moment: e.Moment.UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&row).Error
}

func (s *SQLStore) Clear(ctx context.Context, coll Collection) (int, error) {
	tx := s.db.WithContext(ctx).
		Where("collection = ?", string(coll)).
		Delete(&cacheEntry{})
	return int(tx.RowsAffected), tx.Error
}

func (s *SQLStore) CreateUser(ctx context.Context, u User) error {
	row := userRecord{ID: u.ID, Email: u.Email, CreatedAt: u.CreatedAt.UTC()}
	return s.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&row).Error
}

func (s *SQLStore) GetUser(ctx context.Context, id string) (*User, error) {
	var row userRecord
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, notFound(err, "user "+id)
	}
	return &User{ID: row.ID, Email: row.Email, CreatedAt: row.CreatedAt.UTC()}, nil
}

func (s *SQLStore) CreateAPIKey(ctx context.Context, k APIKey) error {
	row := apiKeyRecord{
		ID:        k.ID,
		UserID:    k.UserID,
		Hash:      k.Hash,
		Name:      k.Name,
		CreatedAt: k.CreatedAt.UTC(),
		ExpiresAt: k.ExpiresAt.UTC(),
	}
	return s.db.WithContext(ctx).Create(&row).Error
}

func (s *SQLStore) APIKeyByHash(ctx context.Context, hash string) (*APIKey, error) {
	var row apiKeyRecord
	if err := s.db.WithContext(ctx).Where("hash = ?", hash).First(&row).Error; err != nil {
		return nil, notFound(err, "api key")
	}
	return &APIKey{
		ID:        row.ID,
		UserID:    row.UserID,
		Hash:      row.Hash,
		Name:      row.Name,
		CreatedAt: row.CreatedAt.UTC(),
		ExpiresAt: row.ExpiresAt.UTC(),
	}, nil
}

func (s *SQLStore) Close(context.Context) error {
	db, err := s.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
