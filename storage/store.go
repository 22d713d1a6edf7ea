package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"driftwatch/logging"

	"github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// ErrRepoNotFound is returned when a repository has no row in the store
var ErrRepoNotFound = errors.New("repository not found in store")

// gormLogger forwards GORM diagnostics to the driftwatch logger
type gormLogger struct {
	level logger.LogLevel
}

// LogMode sets the log level
func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	return &gormLogger{level: level}
}

// Info logs info messages
func (l *gormLogger) Info(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Info {
		logging.Logger.Info(fmt.Sprintf(msg, data...))
	}
}

// Warn logs warn messages
func (l *gormLogger) Warn(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Warn {
		logging.Logger.Warn(fmt.Sprintf(msg, data...))
	}
}

// Error logs error messages
func (l *gormLogger) Error(ctx context.Context, msg string, data ...interface{}) {
	if l.level >= logger.Error {
		logging.Logger.Error(fmt.Sprintf(msg, data...))
	}
}

// Trace logs slow queries and query errors
func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)

	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		sql, rows := fc()
		logging.Logger.Error("query error", "error", err, "duration", elapsed, "sql", sql, "rows", rows)
		return
	}
	if elapsed > 200*time.Millisecond {
		sql, rows := fc()
		logging.Logger.Warn("slow query", "duration", elapsed, "sql", sql, "rows", rows)
	}
}

// Store provides ACID access to per-repository counters and file records.
// SQLite WAL mode plus busy_timeout makes access safe across processes, so
// a running daemon and a concurrent CLI invocation (status, reset, commit)
// never corrupt each other.
type Store struct {
	db *gorm.DB
}

// NewStore opens (creating if needed) the database at dbPath with WAL mode
func NewStore(dbPath string) (*Store, error) {
	if len(dbPath) > 0 && dbPath[0] == '~' {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, dbPath[1:])
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  &gormLogger{level: logger.Warn},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Concurrent readers plus one writer across processes
	db.Exec("PRAGMA journal_mode=WAL")
	db.Exec("PRAGMA busy_timeout=5000")
	db.Exec("PRAGMA synchronous=NORMAL")
	db.Exec("PRAGMA foreign_keys=ON")

	if err := db.AutoMigrate(&Repo{}, &FileComplexity{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(0)

	return &Store{db: db}, nil
}

// Close releases the underlying database handle
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetOrCreateRepo upserts a repository row by path and returns it
func (s *Store) GetOrCreateRepo(ctx context.Context, path string) (*Repo, error) {
	var repo Repo
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Where(Repo{Path: path}).
			FirstOrCreate(&repo).Error
	}, 3)
	if err != nil {
		return nil, fmt.Errorf("failed to get or create repo %s: %w", path, err)
	}
	return &repo, nil
}

// GetRepoByPath returns the repository row for path, or ErrRepoNotFound
func (s *Store) GetRepoByPath(ctx context.Context, path string) (*Repo, error) {
	var repo Repo
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Where("path = ?", path).First(&repo).Error
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrRepoNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load repo %s: %w", path, err)
	}
	return &repo, nil
}

// CumulativeDelta reads the repo's current cumulative complexity delta
func (s *Store) CumulativeDelta(ctx context.Context, repoID uint) (int64, error) {
	var repo Repo
	err := withRetry(func() error {
		return s.db.WithContext(ctx).First(&repo, repoID).Error
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, ErrRepoNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cumulative delta: %w", err)
	}
	return repo.CumulativeDelta, nil
}

// ResetDelta zeroes the repo's cumulative delta
func (s *Store) ResetDelta(ctx context.Context, repoID uint) error {
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Model(&Repo{}).
			Where("id = ?", repoID).
			Update("cumulative_delta", 0).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to reset cumulative delta: %w", err)
	}
	return nil
}

// SetHeadState records the last observed commit hash and branch name
func (s *Store) SetHeadState(ctx context.Context, repoID uint, hash, branch string) error {
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Model(&Repo{}).
			Where("id = ?", repoID).
			Updates(map[string]interface{}{
				"last_commit_hash": hash,
				"last_branch":      branch,
			}).Error
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to update head state: %w", err)
	}
	return nil
}

// GetFileComplexity returns the last recorded complexity for a file.
// The bool reports whether a record exists.
func (s *Store) GetFileComplexity(ctx context.Context, repoID uint, filePath string) (int64, bool, error) {
	var record FileComplexity
	err := withRetry(func() error {
		return s.db.WithContext(ctx).
			Where("repo_id = ? AND file_path = ?", repoID, filePath).
			First(&record).Error
	}, 3)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("failed to read file complexity: %w", err)
	}
	return record.Complexity, true, nil
}

// ApplyFileDelta upserts the file's complexity record and folds delta into
// the repo's cumulative counter in one transaction, so the record and the
// counter can never disagree.
func (s *Store) ApplyFileDelta(ctx context.Context, repoID uint, filePath string, complexity, delta int64) error {
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			record := FileComplexity{
				RepoID:         repoID,
				FilePath:       filePath,
				Complexity:     complexity,
				LastCalculated: time.Now().UTC(),
			}
			if err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "repo_id"}, {Name: "file_path"}},
				DoUpdates: clause.AssignmentColumns([]string{"complexity", "last_calculated", "updated_at"}),
			}).Create(&record).Error; err != nil {
				return fmt.Errorf("failed to upsert file complexity: %w", err)
			}

			if err := tx.Model(&Repo{}).
				Where("id = ?", repoID).
				Update("cumulative_delta", gorm.Expr("cumulative_delta + ?", delta)).Error; err != nil {
				return fmt.Errorf("failed to apply delta: %w", err)
			}
			return nil
		})
	}, 3)
	if err != nil {
		return fmt.Errorf("failed to apply file delta for %s: %w", filePath, err)
	}
	return nil
}

// RemoveFile deletes the file's record and subtracts its recorded value from
// the cumulative counter in one transaction. Returns the prior recorded
// complexity (0 if no record existed).
func (s *Store) RemoveFile(ctx context.Context, repoID uint, filePath string) (int64, error) {
	var prior int64
	err := withRetry(func() error {
		prior = 0
		return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var record FileComplexity
			err := tx.Where("repo_id = ? AND file_path = ?", repoID, filePath).First(&record).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("failed to read file complexity: %w", err)
			}

			if err := tx.Delete(&record).Error; err != nil {
				return fmt.Errorf("failed to delete file complexity: %w", err)
			}

			if record.Complexity != 0 {
				if err := tx.Model(&Repo{}).
					Where("id = ?", repoID).
					Update("cumulative_delta", gorm.Expr("cumulative_delta - ?", record.Complexity)).Error; err != nil {
					return fmt.Errorf("failed to subtract delta: %w", err)
				}
			}
			prior = record.Complexity
			return nil
		})
	}, 3)
	if err != nil {
		return 0, fmt.Errorf("failed to remove file %s: %w", filePath, err)
	}
	return prior, nil
}

// FileCount returns the number of tracked files for a repo
func (s *Store) FileCount(ctx context.Context, repoID uint) (int64, error) {
	var count int64
	err := withRetry(func() error {
		return s.db.WithContext(ctx).Model(&FileComplexity{}).
			Where("repo_id = ?", repoID).
			Count(&count).Error
	}, 3)
	if err != nil {
		return 0, fmt.Errorf("failed to count tracked files: %w", err)
	}
	return count, nil
}

// withRetry retries on SQLITE_BUSY / SQLITE_LOCKED with linear backoff
func withRetry(fn func() error, maxRetries int) error {
	for i := 0; i < maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}

		var sqliteErr sqlite3.Error
		if errors.As(err, &sqliteErr) && (sqliteErr.Code == sqlite3.ErrBusy || sqliteErr.Code == sqlite3.ErrLocked) {
			time.Sleep(time.Millisecond * time.Duration(50*(i+1)))
			continue
		}

		return err
	}
	return fmt.Errorf("operation failed after %d retries", maxRetries)
}
