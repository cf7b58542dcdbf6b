package repository

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"voto-alerts/internal/models"

	"go.uber.org/zap"
)

// HistoryStore is the append-only record of sent notifications.
type HistoryStore interface {
	// Append records one dispatch. Records are never updated or removed.
	Append(ctx context.Context, record models.AlarmHistoryRecord) error
	// List returns every record of a platform in insertion order.
	List(ctx context.Context, platformID string) ([]models.AlarmHistoryRecord, error)
}

var safePlatformID = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileHistoryStore keeps one history file per platform: <dir>/<platform_id>.log
type FileHistoryStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileHistoryStore creates the store, making dir if needed.
func NewFileHistoryStore(dir string, logger *zap.Logger) (*FileHistoryStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history dir: %w", err)
	}
	return &FileHistoryStore{dir: dir, logger: logger}, nil
}

func (s *FileHistoryStore) path(platformID string) (string, error) {
	if !safePlatformID.MatchString(platformID) {
		return "", fmt.Errorf("invalid platform id %q", platformID)
	}
	return filepath.Join(s.dir, platformID+".log"), nil
}

// Append writes one history line.
func (s *FileHistoryStore) Append(ctx context.Context, record models.AlarmHistoryRecord) error {
	path, err := s.path(record.PlatformID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	if _, err := fmt.Fprintln(f, record.String()); err != nil {
		f.Close()
		return fmt.Errorf("failed to append history: %w", err)
	}
	return f.Close()
}

// List reads all history lines of a platform. Unknown platforms have no history.
func (s *FileHistoryStore) List(ctx context.Context, platformID string) ([]models.AlarmHistoryRecord, error) {
	path, err := s.path(platformID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	var records []models.AlarmHistoryRecord
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		rec, err := models.ParseHistoryLine(platformID, line)
		if err != nil {
			s.logger.Warn("Skipping malformed history line",
				zap.String("platform_id", platformID),
				zap.Error(err),
			)
			continue
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read history file: %w", err)
	}
	return records, nil
}
