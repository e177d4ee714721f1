// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scripts

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// CSVReportSource reads the office workflow report from a local CSV export
// with `policy,queue` rows. The production deployment replaces it with the
// document-share reader; dev and tests point it at a fixture file.
type CSVReportSource struct {
	// PathPattern is the report location; an optional %s is replaced with
	// the business date.
	PathPattern string
}

var _ ReportSource = (*CSVReportSource)(nil)

func (s *CSVReportSource) FetchReport(_ context.Context, date string) ([]ReportRow, error) {
	path := s.PathPattern
	if strings.Contains(path, "%s") {
		path = fmt.Sprintf(s.PathPattern, date)
	}
	f, err := os.Open(path) // #nosec G304 -- operator-supplied path
	if err != nil {
		return nil, fmt.Errorf("open office report: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read office report: %w", err)
	}

	var out []ReportRow
	for i, rec := range records {
		if len(rec) < 2 {
			continue
		}
		policy := strings.TrimSpace(rec[0])
		queue := strings.TrimSpace(rec[1])
		if i == 0 && strings.EqualFold(policy, "policy") {
			// header row
			continue
		}
		if policy == "" {
			continue
		}
		out = append(out, ReportRow{PolicyNumber: policy, Queue: queue})
	}
	return out, nil
}
