package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"voto-alerts/internal/models"

	"go.uber.org/zap"
)

const (
	mailAlarmsFile   = "mail_alarms.json"
	surfacingFile    = "lastcheck_surface.txt"
	mailSentinelFile = "last_mail_subject.txt"
	failCountFile    = "mail_alarm_fails.txt"
	redialLedgerFile = "redial.json"
	cursorTimeLayout = "2006-01-02 15:04:05.999999999Z07:00"
	legacyCursorTime = "2006-01-02 15:04:05"
)

// FileStateStore keeps run state as small files in one directory.
type FileStateStore struct {
	dir    string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileStateStore creates the store, making dir if needed.
func NewFileStateStore(dir string, logger *zap.Logger) (*FileStateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state dir: %w", err)
	}
	return &FileStateStore{dir: dir, logger: logger}, nil
}

func (s *FileStateStore) read(name string) ([]byte, bool, error) {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to read %s: %w", name, err)
	}
	return data, true, nil
}

// write replaces the file atomically.
func (s *FileStateStore) write(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", name, err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", name, err)
	}
	return nil
}

func (s *FileStateStore) LoadMailAlarms(ctx context.Context) (map[string]models.MailAlarmState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	alarms := make(map[string]models.MailAlarmState)
	data, ok, err := s.read(mailAlarmsFile)
	if err != nil || !ok {
		return alarms, err
	}
	if err := json.Unmarshal(data, &alarms); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", mailAlarmsFile, err)
	}
	return alarms, nil
}

func (s *FileStateStore) SaveMailAlarms(ctx context.Context, alarms map[string]models.MailAlarmState) error {
	data, err := json.MarshalIndent(alarms, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode mail alarms: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(mailAlarmsFile, data)
}

func (s *FileStateStore) LoadSurfacingCursor(ctx context.Context) (time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.read(surfacingFile)
	if err != nil || !ok {
		return time.Time{}, err
	}
	return parseCursor(strings.TrimSpace(string(data)))
}

func (s *FileStateStore) SaveSurfacingCursor(ctx context.Context, cursor time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(surfacingFile, []byte(cursor.Format(cursorTimeLayout)))
}

func (s *FileStateStore) LoadMailSentinel(ctx context.Context) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.read(mailSentinelFile)
	if err != nil || !ok {
		return "", false, err
	}
	return string(data), true, nil
}

func (s *FileStateStore) SaveMailSentinel(ctx context.Context, subject string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(mailSentinelFile, []byte(subject))
}

func (s *FileStateStore) LoadFailCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, ok, err := s.read(failCountFile)
	if err != nil || !ok {
		return 0, err
	}
	count, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s: %w", failCountFile, err)
	}
	return count, nil
}

func (s *FileStateStore) SaveFailCount(ctx context.Context, count int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.write(failCountFile, []byte(strconv.Itoa(count)))
}

func (s *FileStateStore) LoadRedials(ctx context.Context) (map[string]models.RedialRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadRedials()
}

func (s *FileStateStore) loadRedials() (map[string]models.RedialRecord, error) {
	ledger := make(map[string]models.RedialRecord)
	data, ok, err := s.read(redialLedgerFile)
	if err != nil || !ok {
		return ledger, err
	}
	var records []models.RedialRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to decode %s: %w", redialLedgerFile, err)
	}
	for _, rec := range records {
		ledger[rec.OriginalID] = rec
	}
	return ledger, nil
}

func (s *FileStateStore) AppendRedial(ctx context.Context, record models.RedialRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var records []models.RedialRecord
	data, ok, err := s.read(redialLedgerFile)
	if err != nil {
		return err
	}
	if ok {
		if err := json.Unmarshal(data, &records); err != nil {
			return fmt.Errorf("failed to decode %s: %w", redialLedgerFile, err)
		}
	}
	records = append(records, record)
	out, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode redial ledger: %w", err)
	}
	return s.write(redialLedgerFile, out)
}

func parseCursor(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(cursorTimeLayout, value); err == nil {
		return t, nil
	}
	// cursor files written without an offset are local wall-clock times
	if t, err := time.ParseInLocation(legacyCursorTime, value, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("failed to decode surfacing cursor %q", value)
}
