package schedule

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"voto-alerts/internal/models"
	"voto-alerts/internal/notifier"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// Resolver yields the on-call assignment valid at a point in time.
type Resolver interface {
	Resolve(ctx context.Context, at time.Time) (models.OnCallAssignment, error)
}

var scheduleTimeLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// Row is one schedule entry: from ValidFrom on, Pilot and Supervisor are on duty.
// Both hold names or numbers, possibly comma separated.
type Row struct {
	ValidFrom  time.Time
	Pilot      string
	Supervisor string
}

// Volunteers are the names of people who asked for extra alerts.
type Volunteers struct {
	Alarm     []string
	Surfacing []string
}

// FileResolver reads the schedule snapshot written by the schedule job.
// The snapshot is a ';' separated CSV or an .xlsx workbook with the
// columns datetime, pilot, supervisor.
type FileResolver struct {
	path       string
	contacts   map[string]string
	volunteers Volunteers
	location   *time.Location
	mailer     notifier.Mailer
	logger     *zap.Logger
}

// NewFileResolver creates the resolver. mailer may be nil.
func NewFileResolver(path string, contacts map[string]string, volunteers Volunteers, location *time.Location, mailer notifier.Mailer, logger *zap.Logger) *FileResolver {
	if location == nil {
		location = time.Local
	}
	return &FileResolver{
		path:       path,
		contacts:   contacts,
		volunteers: volunteers,
		location:   location,
		mailer:     mailer,
		logger:     logger,
	}
}

// Resolve picks the last row that started before at.
func (r *FileResolver) Resolve(ctx context.Context, at time.Time) (models.OnCallAssignment, error) {
	rows, err := r.load()
	if err != nil {
		return models.OnCallAssignment{}, err
	}
	row, ok := RowAt(rows, at)
	if !ok {
		return models.OnCallAssignment{}, &models.ConfigError{Msg: fmt.Sprintf("no schedule row before %s", at.Format(time.RFC3339))}
	}

	pilots := splitNames(r.substitute(row.Pilot))
	assignment := models.OnCallAssignment{
		ValidFrom:  row.ValidFrom,
		Pilots:     pilots,
		Supervisor: r.substitute(row.Supervisor),
	}
	assignment.AlarmVolunteers = r.numbersFor(ctx, r.volunteers.Alarm)
	assignment.SurfacingVolunteers = r.numbersFor(ctx, r.volunteers.Surfacing)

	r.logger.Info("Resolved on-call assignment",
		zap.Time("valid_from", row.ValidFrom),
		zap.Int("pilots", len(assignment.Pilots)),
		zap.Bool("supervisor", assignment.HasSupervisor()),
		zap.Int("alarm_volunteers", len(assignment.AlarmVolunteers)),
		zap.Int("surfacing_volunteers", len(assignment.SurfacingVolunteers)),
	)
	return assignment, nil
}

// RowAt returns the last row with ValidFrom strictly before at. rows must be sorted.
func RowAt(rows []Row, at time.Time) (Row, bool) {
	i := sort.Search(len(rows), func(i int) bool { return !rows[i].ValidFrom.Before(at) })
	if i == 0 {
		return Row{}, false
	}
	return rows[i-1], true
}

// substitute replaces contact names by numbers and drops spaces.
func (r *FileResolver) substitute(value string) string {
	parts := strings.Split(value, ",")
	for i, part := range parts {
		name := strings.TrimSpace(part)
		if number, ok := r.contacts[name]; ok {
			name = number
		}
		parts[i] = strings.ReplaceAll(name, " ", "")
	}
	return strings.Trim(strings.Join(parts, ","), ",")
}

func (r *FileResolver) numbersFor(ctx context.Context, names []string) []string {
	var numbers []string
	for _, name := range names {
		number, ok := r.contacts[name]
		if !ok {
			err := &models.ConfigError{Msg: fmt.Sprintf("did not find user %s in contacts", name)}
			r.logger.Error("Missing contact", zap.String("name", name), zap.Error(err))
			if r.mailer != nil {
				if mailErr := r.mailer.Send(ctx, notifier.Mail{Subject: "Missing number", Body: err.Error()}); mailErr != nil {
					r.logger.Warn("Failed to mail missing contact", zap.Error(mailErr))
				}
			}
			continue
		}
		numbers = append(numbers, number)
	}
	return numbers
}

func splitNames(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (r *FileResolver) load() ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(r.path)) {
	case ".xlsx", ".xlsm":
		records, err = readXLSX(r.path)
	default:
		records, err = readCSV(r.path)
	}
	if err != nil {
		return nil, err
	}
	return r.parseRows(records)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule: %w", err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.Comma = ';'
	reader.FieldsPerRecord = -1
	var records [][]string
	for {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, models.NewParseError("schedule", path, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open schedule workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, models.NewParseError("schedule", path, fmt.Errorf("workbook has no sheets"))
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, models.NewParseError("schedule", path, err)
	}
	return rows, nil
}

// parseRows reads a header row naming pilot and supervisor; the first column is the start time.
func (r *FileResolver) parseRows(records [][]string) ([]Row, error) {
	if len(records) == 0 {
		return nil, models.NewParseError("schedule", r.path, fmt.Errorf("empty schedule"))
	}
	pilotCol, supervisorCol := -1, -1
	for i, name := range records[0] {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "pilot":
			pilotCol = i
		case "supervisor":
			supervisorCol = i
		}
	}
	if pilotCol < 0 {
		return nil, models.NewParseError("schedule", r.path, fmt.Errorf("no pilot column"))
	}

	cell := func(rec []string, i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		v := strings.TrimSpace(rec[i])
		if strings.EqualFold(v, "nan") {
			return ""
		}
		return v
	}

	var rows []Row
	for _, rec := range records[1:] {
		start, err := r.parseTime(cell(rec, 0))
		if err != nil {
			r.logger.Warn("Skipping schedule row", zap.Strings("row", rec), zap.Error(err))
			continue
		}
		rows = append(rows, Row{
			ValidFrom:  start,
			Pilot:      cell(rec, pilotCol),
			Supervisor: cell(rec, supervisorCol),
		})
	}
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].ValidFrom.Before(rows[j].ValidFrom) })
	return rows, nil
}

func (r *FileResolver) parseTime(value string) (time.Time, error) {
	for _, layout := range scheduleTimeLayouts {
		if t, err := time.ParseInLocation(layout, value, r.location); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised schedule time %q", value)
}
