package recordstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// recordRow is one record in the shared records table.
type recordRow struct {
	Collection string `gorm:"primaryKey;size:64"`
	RecordKey  string `gorm:"primaryKey;size:128"`
	Body       []byte `gorm:"not null"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// TableName returns the table name for GORM.
func (recordRow) TableName() string {
	return "records"
}

// GormBackend stores records in a single SQL table through GORM.
type GormBackend struct {
	db *gorm.DB
}

// OpenSQLiteBackend opens (or creates) the SQLite database at path.
func OpenSQLiteBackend(path string) (*GormBackend, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return NewGormBackend(db)
}

// NewGormBackend migrates the records table on db.
func NewGormBackend(db *gorm.DB) (*GormBackend, error) {
	if err := db.AutoMigrate(&recordRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return &GormBackend{db: db}, nil
}

// Create inserts a row unless the key is taken.
func (b *GormBackend) Create(ctx context.Context, collection, key string, data []byte) error {
	row := recordRow{Collection: collection, RecordKey: key, Body: data}
	result := b.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if result.Error != nil {
		return fmt.Errorf("failed to create record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrKeyExists
	}
	return nil
}

// Get returns the body of a row.
func (b *GormBackend) Get(ctx context.Context, collection, key string) ([]byte, error) {
	var row recordRow
	err := b.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		First(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get record: %w", err)
	}
	return row.Body, nil
}

// List returns the rows of collection in creation order.
func (b *GormBackend) List(ctx context.Context, collection string) ([]Entry, error) {
	var rows []recordRow
	err := b.db.WithContext(ctx).
		Where("collection = ?", collection).
		Order("created_at ASC, record_key ASC").
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	entries := make([]Entry, 0, len(rows))
	for _, r := range rows {
		entries = append(entries, Entry{Key: r.RecordKey, Data: r.Body})
	}
	return entries, nil
}

// Update overwrites the body of an existing row.
func (b *GormBackend) Update(ctx context.Context, collection, key string, data []byte) error {
	result := b.db.WithContext(ctx).
		Model(&recordRow{}).
		Where("collection = ? AND record_key = ?", collection, key).
		Updates(map[string]any{"body": data, "updated_at": time.Now()})
	if result.Error != nil {
		return fmt.Errorf("failed to update record: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes a row. Missing rows are fine.
func (b *GormBackend) Delete(ctx context.Context, collection, key string) error {
	err := b.db.WithContext(ctx).
		Where("collection = ? AND record_key = ?", collection, key).
		Delete(&recordRow{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete record: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (b *GormBackend) Ping(ctx context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database connection: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close closes the database.
func (b *GormBackend) Close() error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
