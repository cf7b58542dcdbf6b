package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"voto-alerts/internal/models"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// SailbuoyVariables are requested from a dataset when it has them.
var SailbuoyVariables = []string{"Leak", "BigLeak", "SailRotation", "Warning", "WithinTrackRadius"}

type erddapTable struct {
	Table struct {
		ColumnNames []string        `json:"columnNames"`
		Rows        [][]interface{} `json:"rows"`
	} `json:"table"`
}

// ERDDAPSource downloads sailbuoy telemetry from an ERDDAP tabledap server.
type ERDDAPSource struct {
	httpClient *resty.Client
	lookback   time.Duration
	logger     *zap.Logger
	now        func() time.Time
}

// NewERDDAPSource creates the source. Only samples newer than lookback are fetched.
func NewERDDAPSource(baseURL string, timeout, lookback time.Duration, logger *zap.Logger) *ERDDAPSource {
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second).
		SetHeader("Accept", "application/json")

	return &ERDDAPSource{
		httpClient: client,
		lookback:   lookback,
		logger:     logger,
		now:        time.Now,
	}
}

// Fetch reads the dataset attributes and its recent sailbuoy variables.
func (s *ERDDAPSource) Fetch(ctx context.Context, datasetID string) (models.Dataset, error) {
	attrs, variables, err := s.info(ctx, datasetID)
	if err != nil {
		return models.Dataset{}, err
	}

	ds := models.Dataset{
		PlatformSerial: attrs["platform_serial"],
		Series:         make(map[string][]float64),
	}
	if ds.PlatformSerial == "" {
		return models.Dataset{}, models.NewParseError("erddap", datasetID, fmt.Errorf("missing platform_serial attribute"))
	}
	if ds.DeploymentID, err = strconv.Atoi(strings.TrimSpace(attrs["deployment_id"])); err != nil {
		return models.Dataset{}, models.NewParseError("erddap", datasetID, fmt.Errorf("deployment_id: %w", err))
	}

	columns := []string{"time"}
	for _, name := range SailbuoyVariables {
		if variables[name] {
			columns = append(columns, name)
		}
	}
	query := strings.Join(columns, ",")
	if s.lookback > 0 {
		since := s.now().Add(-s.lookback).UTC().Format(time.RFC3339)
		query += "&time%3E=" + since
	}

	var table erddapTable
	if err := s.get(ctx, "/tabledap/"+datasetID+".json?"+query, &table); err != nil {
		return models.Dataset{}, err
	}

	index := make(map[string]int, len(table.Table.ColumnNames))
	for i, name := range table.Table.ColumnNames {
		index[name] = i
	}
	timeCol, ok := index["time"]
	if !ok {
		return models.Dataset{}, models.NewParseError("erddap", datasetID, fmt.Errorf("no time column"))
	}
	for _, row := range table.Table.Rows {
		if timeCol >= len(row) {
			continue
		}
		raw, _ := row[timeCol].(string)
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			s.logger.Debug("Skipping row with bad time", zap.String("dataset", datasetID), zap.String("time", raw))
			continue
		}
		ds.Times = append(ds.Times, t)
		for _, name := range columns[1:] {
			v := math.NaN()
			if i, ok := index[name]; ok && i < len(row) {
				if f, ok := row[i].(float64); ok {
					v = f
				}
			}
			ds.Series[name] = append(ds.Series[name], v)
		}
	}

	s.logger.Debug("Fetched sailbuoy dataset",
		zap.String("dataset", datasetID),
		zap.String("platform_serial", ds.PlatformSerial),
		zap.Int("samples", len(ds.Times)),
	)
	return ds, nil
}

// info returns the global attributes and the variable names of a dataset.
func (s *ERDDAPSource) info(ctx context.Context, datasetID string) (map[string]string, map[string]bool, error) {
	var table erddapTable
	if err := s.get(ctx, "/info/"+datasetID+"/index.json", &table); err != nil {
		return nil, nil, err
	}

	col := make(map[string]int)
	for i, name := range table.Table.ColumnNames {
		col[name] = i
	}
	field := func(row []interface{}, name string) string {
		i, ok := col[name]
		if !ok || i >= len(row) {
			return ""
		}
		v, _ := row[i].(string)
		return v
	}

	attrs := make(map[string]string)
	variables := make(map[string]bool)
	for _, row := range table.Table.Rows {
		switch field(row, "Row Type") {
		case "variable":
			variables[field(row, "Variable Name")] = true
		case "attribute":
			if field(row, "Variable Name") == "NC_GLOBAL" {
				attrs[field(row, "Attribute Name")] = field(row, "Value")
			}
		}
	}
	return attrs, variables, nil
}

func (s *ERDDAPSource) get(ctx context.Context, path string, out *erddapTable) error {
	resp, err := s.httpClient.R().
		SetContext(ctx).
		Get(path)
	if err != nil {
		return &models.TransportError{Op: "erddap get", Err: err}
	}
	if resp.StatusCode() != http.StatusOK {
		return &models.TransportError{Op: "erddap get", StatusCode: resp.StatusCode(), Body: resp.String()}
	}
	if err := json.Unmarshal(resp.Body(), out); err != nil {
		return models.NewParseError("erddap", path, err)
	}
	return nil
}
