package storage

import (
	"os"
	"path/filepath"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"visionbridge-server-go/internal/platform/config"
	"visionbridge-server-go/internal/platform/errors"
)

// UserSettings holds the per-user speech and analysis preferences, read at
// session start and updated through the control channel.
type UserSettings struct {
	ID                 uint    `gorm:"primaryKey"`
	UserID             string  `gorm:"type:varchar(255);uniqueIndex;not null" json:"user_id"`
	SpeechRate         float64 `gorm:"default:1.0"                            json:"speech_rate"`
	SpeechVolume       float64 `gorm:"default:1.0"                            json:"speech_volume"`
	Language           string  `gorm:"default:'ja-JP'"                        json:"language"`
	AnalysisIntervalMS int     `gorm:"default:5000"                           json:"analysis_interval_ms"`
	AnalysisMode       string  `gorm:"default:'normal'"                       json:"analysis_mode"`
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// AnalysisRecord is one completed analysis cycle kept for history.
type AnalysisRecord struct {
	ID        uint           `gorm:"primaryKey"`
	SessionID string         `gorm:"index;not null" json:"session_id"`
	Mode      string         `json:"mode"`
	Text      string         `gorm:"type:text"      json:"text"`
	IsChange  bool           `json:"is_change"`
	Spoken    bool           `json:"spoken"`
	Extra     datatypes.JSON `json:"extra,omitempty"`
	CreatedAt time.Time      `gorm:"index"`
}

// Store wraps the SQLite database behind the settings and history operations.
type Store struct {
	db     *gorm.DB
	speech config.SpeechConfig
}

// Open creates the database file, runs migrations and returns a ready store.
// speech supplies the rate and volume written into first-access settings rows.
func Open(cfg config.StorageConfig, speech config.SpeechConfig) (*Store, error) {
	dsn := cfg.DSN
	if dsn == "" {
		dataDir := "./data"
		if err := os.MkdirAll(dataDir, 0755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "storage.open", "create data directory", err)
		}
		dsn = filepath.Join(dataDir, "visionbridge.db")
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "open database", err)
	}

	if err := db.AutoMigrate(&UserSettings{}, &AnalysisRecord{}); err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.open", "migrate database", err)
	}

	if speech.Rate <= 0 {
		speech.Rate = 1.0
	}
	if speech.Volume <= 0 {
		speech.Volume = 1.0
	}
	return &Store{db: db, speech: speech}, nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.close", "resolve connection", err)
	}
	return sqlDB.Close()
}

// Settings loads a user's preferences, creating defaults on first access.
func (s *Store) Settings(userID string) (UserSettings, error) {
	var settings UserSettings
	err := s.db.Where("user_id = ?", userID).First(&settings).Error
	if err == nil {
		return settings, nil
	}
	if !isNotFound(err) {
		return UserSettings{}, errors.Wrap(errors.KindStorage, "storage.settings", "load settings", err)
	}

	settings = UserSettings{
		UserID:             userID,
		SpeechRate:         s.speech.Rate,
		SpeechVolume:       s.speech.Volume,
		Language:           "ja-JP",
		AnalysisIntervalMS: 5000,
		AnalysisMode:       "normal",
	}
	if err := s.db.Create(&settings).Error; err != nil {
		return UserSettings{}, errors.Wrap(errors.KindStorage, "storage.settings", "create default settings", err)
	}
	return settings, nil
}

func isNotFound(err error) bool {
	return err == gorm.ErrRecordNotFound
}

// SaveSettings persists updated preferences for an existing user row.
func (s *Store) SaveSettings(settings UserSettings) error {
	err := s.db.Model(&UserSettings{}).
		Where("user_id = ?", settings.UserID).
		Updates(map[string]interface{}{
			"speech_rate":          settings.SpeechRate,
			"speech_volume":        settings.SpeechVolume,
			"language":             settings.Language,
			"analysis_interval_ms": settings.AnalysisIntervalMS,
			"analysis_mode":        settings.AnalysisMode,
		}).Error
	if err != nil {
		return errors.Wrap(errors.KindStorage, "storage.save_settings", "update settings", err)
	}
	return nil
}

// RecordAnalysis appends one history entry.
func (s *Store) RecordAnalysis(record AnalysisRecord) error {
	if err := s.db.Create(&record).Error; err != nil {
		return errors.Wrap(errors.KindStorage, "storage.record", "insert analysis record", err)
	}
	return nil
}

// History returns a session's most recent analyses, newest first.
func (s *Store) History(sessionID string, limit int) ([]AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var records []AnalysisRecord
	err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "storage.history", "load history", err)
	}
	return records, nil
}
