// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scripts

import (
	"context"
	"database/sql"
	"fmt"
)

// PendingRecord is one pending-transaction row from the host database.
type PendingRecord struct {
	Key  string // PEND_KEY: state code (2) + unique digit (1) + policy (7)
	Info string // PEND_INFO
	Date string // PEND_DATE, YYYY-MM-DD
}

// PendingSource provides the pending BI-renew transactions for a business
// date.
type PendingSource interface {
	FetchPending(ctx context.Context, date string) ([]PendingRecord, error)
}

// ReportRow is one row of the office workflow report.
type ReportRow struct {
	PolicyNumber string
	Queue        string
}

// ReportSource provides the office workflow report for a business date.
type ReportSource interface {
	FetchReport(ctx context.Context, date string) ([]ReportRow, error)
}

// SQLPendingSource reads pending records through database/sql. The production
// deployment points it at the host database; dev and tests use sqlite.
type SQLPendingSource struct {
	DB    *sql.DB
	Table string // defaults to NZ490
}

var _ PendingSource = (*SQLPendingSource)(nil)

func (s *SQLPendingSource) FetchPending(ctx context.Context, date string) ([]PendingRecord, error) {
	table := s.Table
	if table == "" {
		table = "NZ490"
	}
	query := fmt.Sprintf(
		"SELECT PEND_KEY, PEND_INFO, PEND_DATE FROM %s WHERE PEND_CODE = '21' AND PEND_INFO = 'BI_RENEW' AND PEND_DATE = ?",
		table)

	rows, err := s.DB.QueryContext(ctx, query, date)
	if err != nil {
		return nil, fmt.Errorf("query pending records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []PendingRecord
	for rows.Next() {
		var rec PendingRecord
		if err := rows.Scan(&rec.Key, &rec.Info, &rec.Date); err != nil {
			return nil, fmt.Errorf("scan pending record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read pending records: %w", err)
	}
	return out, nil
}
