package logger

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

const (
	// 日志保留天数，超过后由后台任务清理
	logRetentionDays = 30
	cleanupInterval  = 24 * time.Hour
)

// SQLiteStorage 基于 SQLite 的请求日志存储
type SQLiteStorage struct {
	db            *gorm.DB
	dbPath        string
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
}

// NewSQLiteStorage creates a new SQLite-based log storage
func NewSQLiteStorage(logDir string) (*SQLiteStorage, error) {
	// Create log directory if it doesn't exist
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %v", err)
	}

	dbPath := filepath.Join(logDir, "logs.db")

	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent), // 保持静默，不输出GORM日志
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %v", err)
	}

	// Set connection pool settings
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(10)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(&RequestLog{}); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate database: %v", err)
	}

	storage := &SQLiteStorage{
		db:          db,
		dbPath:      dbPath,
		stopCleanup: make(chan struct{}),
	}

	// Start background cleanup routine (runs every 24 hours)
	storage.startBackgroundCleanup()

	return storage, nil
}

// SaveLog saves a log entry to the database
func (s *SQLiteStorage) SaveLog(log *RequestLog) {
	if err := s.db.Create(log).Error; err != nil {
		// Log error but don't fail the application
		fmt.Printf("Failed to save log to database: %v\n", err)
	}
}

// GetLogs retrieves logs with pagination and optional filtering
func (s *SQLiteStorage) GetLogs(limit, offset int, failedOnly bool) ([]*RequestLog, int, error) {
	query := s.db.Model(&RequestLog{})
	if failedOnly {
		query = query.Where("status_code >= ? OR error != ''", 400)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to get total count: %v", err)
	}

	var logs []*RequestLog
	err := query.Order("timestamp DESC").Limit(limit).Offset(offset).Find(&logs).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query logs: %v", err)
	}

	return logs, int(total), nil
}

// GetAllLogsByRequestID retrieves all log entries for a specific request ID
func (s *SQLiteStorage) GetAllLogsByRequestID(requestID string) ([]*RequestLog, error) {
	var logs []*RequestLog
	err := s.db.Where("request_id = ?", requestID).Order("timestamp ASC").Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query logs by request ID: %v", err)
	}
	return logs, nil
}

// CleanupLogsByDays deletes logs older than the given number of days.
// days == 0 deletes all logs.
func (s *SQLiteStorage) CleanupLogsByDays(days int) (int64, error) {
	var result *gorm.DB
	if days == 0 {
		result = s.db.Where("1 = 1").Delete(&RequestLog{})
	} else {
		cutoff := time.Now().AddDate(0, 0, -days)
		result = s.db.Where("timestamp < ?", cutoff).Delete(&RequestLog{})
	}

	if result.Error != nil {
		return 0, fmt.Errorf("failed to cleanup logs: %v", result.Error)
	}
	return result.RowsAffected, nil
}

func (s *SQLiteStorage) startBackgroundCleanup() {
	s.cleanupTicker = time.NewTicker(cleanupInterval)
	go func() {
		for {
			select {
			case <-s.cleanupTicker.C:
				if _, err := s.CleanupLogsByDays(logRetentionDays); err != nil {
					fmt.Printf("Background log cleanup failed: %v\n", err)
				}
			case <-s.stopCleanup:
				return
			}
		}
	}()
}

// Close closes the database connection and stops cleanup routines
func (s *SQLiteStorage) Close() error {
	if s.cleanupTicker != nil {
		s.cleanupTicker.Stop()
	}

	select {
	case s.stopCleanup <- struct{}{}:
	default:
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
