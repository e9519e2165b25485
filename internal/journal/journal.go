package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Outcome is one terminal execution record: what was requested, whether the
// broker accepted it, and how long the submission took.
type Outcome struct {
	ID          uint      `gorm:"primaryKey"`
	CreatedAt   time.Time `gorm:"index"`
	Symbol      string    `gorm:"index"`
	Strategy    string
	Action      string
	Fingerprint string
	Quality     float64
	Lot         float64
	Price       float64
	TP          float64
	SL          float64
	Accepted    bool
	Ticket      int64
	ErrorKind   string
	LatencyMs   int64
}

// Journal persists execution outcomes in a local SQLite file. It is strictly
// for monitoring and post-mortems; the pipeline never reads it on the hot
// path.
type Journal struct {
	db *gorm.DB
}

// Open creates the parent directory, connects and migrates.
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal: create dir: %w", err)
	}
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&Outcome{}); err != nil {
		return nil, fmt.Errorf("journal: migrate: %w", err)
	}
	return &Journal{db: db}, nil
}

// Record writes one outcome row. A nil journal is a no-op so callers can
// wire it unconditionally.
func (j *Journal) Record(o Outcome) error {
	if j == nil {
		return nil
	}
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now().UTC()
	}
	return j.db.Create(&o).Error
}

// Recent returns the latest n outcomes, newest first.
func (j *Journal) Recent(n int) ([]Outcome, error) {
	if j == nil {
		return nil, nil
	}
	var out []Outcome
	err := j.db.Order("created_at desc").Limit(n).Find(&out).Error
	return out, err
}

// Close releases the underlying connection.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	db, err := j.db.DB()
	if err != nil {
		return err
	}
	return db.Close()
}
