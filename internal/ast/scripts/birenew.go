// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scripts

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/log"
	"github.com/ManuGH/hostgw/internal/protocol"
)

// Queues whose presence excludes a policy from automatic renewal.
var excludedQueues = map[string]bool{
	"EC":  true,
	"EN":  true,
	"EP":  true,
	"SUP": true,
	"DPI": true,
}

const pndQueuePrefix = "PND"

// RenewalItem is one eligible BI-renew work item, decomposed from PEND_KEY.
type RenewalItem struct {
	PolicyNumber string // 7 characters, PEND_KEY[3:10]
	StateCode    string // PEND_KEY[0:2]
	UniqueDigit  string // PEND_KEY[2:3]
	PendKey      string
	PendDate     string
	PndCount     int // open PND-queue entries for the policy
}

// BiRenew processes the daily BI renewal backlog: pending transactions are
// fetched from the host database, cross-referenced against the office
// workflow report and renewed on the terminal.
type BiRenew struct {
	Pending PendingSource
	Report  ReportSource
	Auth    ast.AuthDefaults
}

var _ ast.Script = (*BiRenew)(nil)

func (s *BiRenew) Info() ast.Info {
	return ast.Info{
		Name:             "bi_renew",
		Description:      "Renews pending BI transactions for the business date",
		SupportsParallel: true,
		AuthKeywords:     fireAuth.keywords,
		Application:      fireAuth.application,
		Group:            fireAuth.group,
	}
}

// PrepareItems resolves the business date's pending records into eligible
// renewal items.
func (s *BiRenew) PrepareItems(ctx context.Context, rt *ast.Runtime, params protocol.RunParams) ([]ast.Item, error) {
	logger := log.WithComponentFromContext(ctx, "ast.bi_renew")

	if s.Pending == nil || s.Report == nil {
		return nil, fmt.Errorf("bi_renew sources not configured")
	}

	date := params.Date
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}

	rt.Progress(ast.ProgressEvent{Message: fmt.Sprintf("Fetching pending records for %s", date)})
	pending, err := s.Pending.FetchPending(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch pending records: %w", err)
	}
	logger.Info().Int(log.FieldBatchSize, len(pending)).Str("date", date).Msg("pending records fetched")
	if len(pending) == 0 {
		return nil, nil
	}

	rt.Progress(ast.ProgressEvent{Message: "Fetching office report"})
	report, err := s.Report.FetchReport(ctx, date)
	if err != nil {
		return nil, fmt.Errorf("fetch office report: %w", err)
	}

	pndCounts := make(map[string]int)
	excluded := make(map[string]bool)
	for _, row := range report {
		if strings.HasPrefix(row.Queue, pndQueuePrefix) {
			pndCounts[row.PolicyNumber]++
		}
		if excludedQueues[row.Queue] {
			excluded[row.PolicyNumber] = true
		}
	}

	var items []ast.Item
	for _, rec := range pending {
		item, err := decomposePendKey(rec)
		if err != nil {
			logger.Warn().Err(err).Str("pend_key", rec.Key).Msg("skipping malformed pending record")
			continue
		}
		if excluded[item.PolicyNumber] {
			logger.Info().Str(log.FieldItemID, item.PolicyNumber).Msg("policy excluded by workflow queue")
			continue
		}
		item.PndCount = pndCounts[item.PolicyNumber]
		items = append(items, item)
	}

	logger.Info().
		Int(log.FieldBatchSize, len(items)).
		Int("excluded", len(pending)-len(items)).
		Msg("renewal items prepared")
	return items, nil
}

// ValidateItem accepts items whose policy number is 7 alphanumerics.
func (s *BiRenew) ValidateItem(item ast.Item) bool {
	ri, ok := item.(RenewalItem)
	return ok && isAlnum(ri.PolicyNumber, 7)
}

func (s *BiRenew) ItemID(item ast.Item) string {
	if ri, ok := item.(RenewalItem); ok {
		return ri.PolicyNumber
	}
	return fmt.Sprintf("%v", item)
}

func (s *BiRenew) Authenticate(ctx context.Context, term emulator.Terminal, creds ast.Credentials) error {
	return ast.SignOn(ctx, term, creds, s.Info(), s.Auth)
}

func (s *BiRenew) ProcessSingleItem(ctx context.Context, term emulator.Terminal, shots *ast.Shots, item ast.Item, index, total int) (map[string]any, error) {
	ri := item.(RenewalItem)

	if !term.FillFieldByLabel("Policy", ri.PolicyNumber) {
		return nil, fmt.Errorf("policy input field not found: %w", emulator.ErrFieldNotFound)
	}
	if err := term.Submit(); err != nil {
		return nil, fmt.Errorf("open policy %s: %w", ri.PolicyNumber, err)
	}
	if !term.WaitForText(ctx, ri.PolicyNumber, s.Auth.MaxWait) {
		return nil, fmt.Errorf("policy %s: renewal screen not reached", ri.PolicyNumber)
	}
	shots.Capture(term, "renewal")

	// Confirm the renewal transaction.
	if err := term.Submit(); err != nil {
		return nil, fmt.Errorf("confirm renewal %s: %w", ri.PolicyNumber, err)
	}
	if !term.WaitForText(ctx, "Transaction complete", s.Auth.MaxWait) {
		return nil, fmt.Errorf("policy %s: renewal not confirmed", ri.PolicyNumber)
	}
	shots.Capture(term, "confirmation")

	if err := term.ProgramFunction(3); err != nil {
		return nil, fmt.Errorf("return from policy %s: %w", ri.PolicyNumber, err)
	}

	return map[string]any{
		"policyNumber": ri.PolicyNumber,
		"stateCode":    ri.StateCode,
		"pendKey":      ri.PendKey,
		"pndCount":     ri.PndCount,
	}, nil
}

func (s *BiRenew) Logoff(ctx context.Context, term emulator.Terminal) error {
	// Same exit sequence as the interactive script.
	login := &Login{Auth: s.Auth}
	return login.Logoff(ctx, term)
}

func decomposePendKey(rec PendingRecord) (RenewalItem, error) {
	if len(rec.Key) < 10 {
		return RenewalItem{}, fmt.Errorf("pend key %q shorter than 10 characters", rec.Key)
	}
	return RenewalItem{
		StateCode:    rec.Key[0:2],
		UniqueDigit:  rec.Key[2:3],
		PolicyNumber: rec.Key[3:10],
		PendKey:      rec.Key,
		PendDate:     rec.Date,
	}, nil
}
