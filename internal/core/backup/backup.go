package backup

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Config controls scheduled database backups
type Config struct {
	Enabled   bool   `mapstructure:"enabled"`
	Schedule  string `mapstructure:"schedule"`
	Directory string `mapstructure:"directory"`
	Keep      int    `mapstructure:"keep"`
}

// Info describes one backup archive on disk
type Info struct {
	Name      string    `json:"name"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
}

// Service produces gzip-compressed copies of the database on a cron
// schedule and prunes old archives
type Service struct {
	cfg    Config
	dbPath string
	logger *logrus.Logger
	cron   *cron.Cron
}

// NewService creates a backup service for the given database file
func NewService(cfg Config, dbPath string, logger *logrus.Logger) *Service {
	return &Service{
		cfg:    cfg,
		dbPath: dbPath,
		logger: logger,
		cron:   cron.New(),
	}
}

// Start schedules backups if enabled
func (s *Service) Start() error {
	if !s.cfg.Enabled {
		return nil
	}
	if err := os.MkdirAll(s.cfg.Directory, 0755); err != nil {
		return fmt.Errorf("failed to create backup directory: %w", err)
	}

	_, err := s.cron.AddFunc(s.cfg.Schedule, func() {
		if _, err := s.BackupNow(); err != nil {
			s.logger.WithError(err).Error("Scheduled backup failed")
		}
	})
	if err != nil {
		return fmt.Errorf("invalid backup schedule %q: %w", s.cfg.Schedule, err)
	}

	s.cron.Start()
	s.logger.WithField("schedule", s.cfg.Schedule).Info("Backup scheduler started")
	return nil
}

// Stop halts the scheduler
func (s *Service) Stop() {
	s.cron.Stop()
}

// BackupNow writes a gzip copy of the database and prunes old archives.
// Returns the archive path.
func (s *Service) BackupNow() (string, error) {
	if err := os.MkdirAll(s.cfg.Directory, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	src, err := os.Open(s.dbPath)
	if err != nil {
		return "", fmt.Errorf("failed to open database file: %w", err)
	}
	defer src.Close()

	name := fmt.Sprintf("haven-%s.db.gz", time.Now().Format("20060102-150405"))
	path := filepath.Join(s.cfg.Directory, name)

	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}
	defer dst.Close()

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		os.Remove(path)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := gz.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}

	s.logger.WithField("path", path).Info("Database backup written")

	if err := s.prune(); err != nil {
		s.logger.WithError(err).Warn("Failed to prune old backups")
	}
	return path, nil
}

// List returns the backups on disk, newest first
func (s *Service) List() ([]Info, error) {
	entries, err := os.ReadDir(s.cfg.Directory)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	backups := make([]Info, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db.gz") {
			continue
		}
		fi, err := entry.Info()
		if err != nil {
			continue
		}
		backups = append(backups, Info{
			Name:      entry.Name(),
			Size:      fi.Size(),
			CreatedAt: fi.ModTime(),
		})
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

func (s *Service) prune() error {
	if s.cfg.Keep <= 0 {
		return nil
	}
	backups, err := s.List()
	if err != nil {
		return err
	}
	for i := s.cfg.Keep; i < len(backups); i++ {
		if err := os.Remove(filepath.Join(s.cfg.Directory, backups[i].Name)); err != nil {
			return err
		}
	}
	return nil
}
