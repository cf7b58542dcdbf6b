package consumer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"
)

// DefaultCommLogPattern matches raw glider communication logs.
const DefaultCommLogPattern = "*.com.raw.log"

// CommLogScanner finds the current comm log of every glider under a data dir
// laid out as <base>/SEA<nnn>/.../<file>.
type CommLogScanner struct {
	baseDir string
	pattern string
	logger  *zap.Logger
}

// NewCommLogScanner creates the scanner. An empty pattern means DefaultCommLogPattern.
func NewCommLogScanner(baseDir, pattern string, logger *zap.Logger) *CommLogScanner {
	if pattern == "" {
		pattern = DefaultCommLogPattern
	}
	return &CommLogScanner{baseDir: baseDir, pattern: pattern, logger: logger}
}

// Scan returns the most recently modified matching file of each SEA* dir,
// ordered by glider dir name. Dirs without a matching file are skipped.
func (s *CommLogScanner) Scan() ([]string, error) {
	dirs, err := filepath.Glob(filepath.Join(s.baseDir, "SEA*"))
	if err != nil {
		return nil, fmt.Errorf("failed to list glider dirs: %w", err)
	}
	sort.Strings(dirs)

	var files []string
	for _, dir := range dirs {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			continue
		}
		latest, err := s.latestIn(dir)
		if err != nil {
			s.logger.Warn("Failed to scan glider dir",
				zap.String("dir", dir),
				zap.Error(err),
			)
			continue
		}
		if latest == "" {
			s.logger.Debug("No comm log in glider dir", zap.String("dir", dir))
			continue
		}
		files = append(files, latest)
	}
	return files, nil
}

func (s *CommLogScanner) latestIn(dir string) (string, error) {
	var (
		latest  string
		latestT int64
	)
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ok, err := filepath.Match(s.pattern, d.Name())
		if err != nil || !ok {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		mod := info.ModTime().UnixNano()
		if latest == "" || mod > latestT || (mod == latestT && path > latest) {
			latest, latestT = path, mod
		}
		return nil
	})
	return latest, err
}
