// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package scripts

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/ManuGH/hostgw/internal/ast"
	"github.com/ManuGH/hostgw/internal/emulator"
	"github.com/ManuGH/hostgw/internal/emulator/fake"
	"github.com/ManuGH/hostgw/internal/protocol"
)

var fastWaits = ast.AuthDefaults{MaxWait: 200 * time.Millisecond, WaitSleep: 5 * time.Millisecond}

func TestLoginValidateItem(t *testing.T) {
	s := &Login{}
	assert.True(t, s.ValidateItem("POL123456"))
	assert.True(t, s.ValidateItem("abcDEF789"))
	assert.False(t, s.ValidateItem("SHORT"))
	assert.False(t, s.ValidateItem("TOOLONG1234"))
	assert.False(t, s.ValidateItem("POL-12345"))
	assert.False(t, s.ValidateItem(42))
}

func TestLoginPrepareItemsPrefersPolicyNumbers(t *testing.T) {
	s := &Login{}
	rt := ast.NewRuntime("s1", "e1", "login", nil)

	items, err := s.PrepareItems(context.Background(), rt, protocol.RunParams{
		Items:         []string{"OLD123456"},
		PolicyNumbers: []string{"POL123456", "POL654321"},
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "POL123456", items[0])
	assert.Equal(t, "POL654321", items[1])

	items, err = s.PrepareItems(context.Background(), rt, protocol.RunParams{
		Items: []string{"OLD123456"},
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "OLD123456", items[0])
}

func TestLoginProcessSingleItem(t *testing.T) {
	s := &Login{Auth: fastWaits}
	term := fake.NewSession("t1")
	term.Screen = "POLICY DETAIL POL123456"
	shots := &ast.Shots{}

	data, err := s.ProcessSingleItem(context.Background(), term, shots, "POL123456", 1, 1)
	require.NoError(t, err)
	assert.Equal(t, "POL123456", data["policyNumber"])
	assert.Equal(t, "active", data["status"])

	assert.Equal(t, "POL123456", term.Filled["Policy"])
	assert.Equal(t, 1, term.SubmitCount())
	assert.Equal(t, []int{3}, term.PFs, "returns to the selection screen")

	captures := shots.List()
	require.Len(t, captures, 1)
	assert.Equal(t, "policy", captures[0].Label)
	assert.Equal(t, "POLICY DETAIL POL123456", captures[0].Screen)
}

func TestLoginProcessSingleItemFieldMissing(t *testing.T) {
	s := &Login{Auth: fastWaits}
	term := fake.NewSession("t1")
	term.OnFillByLabel = func(label, value string) bool { return false }

	_, err := s.ProcessSingleItem(context.Background(), term, &ast.Shots{}, "POL123456", 1, 1)
	require.ErrorIs(t, err, emulator.ErrFieldNotFound)
	assert.Zero(t, term.SubmitCount())
}

func TestLoginLogoff(t *testing.T) {
	s := &Login{Auth: fastWaits}
	term := fake.NewSession("t1")

	require.NoError(t, s.Logoff(context.Background(), term))
	assert.Equal(t, []int{15}, term.PFs, "one PF15 reaches the exit menu")
	assert.Equal(t, "1", term.Filled["@36,5"], "exit option confirmed")
	assert.Equal(t, 1, term.SubmitCount())
}

func TestLoginLogoffAlreadyOnExitMenu(t *testing.T) {
	s := &Login{Auth: fastWaits}
	term := fake.NewSession("t1")
	term.OnScreenContains = func(text string) bool { return text == exitMenuText }

	require.NoError(t, s.Logoff(context.Background(), term))
	assert.Empty(t, term.PFs, "no PF15 needed when already on the exit menu")
	assert.Equal(t, "1", term.Filled["@36,5"])
}

func TestLoginLogoffExitMenuNeverReached(t *testing.T) {
	s := &Login{Auth: fastWaits}
	term := fake.NewSession("t1")
	term.OnWaitForText = func(text string) bool { return false }

	err := s.Logoff(context.Background(), term)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exit menu not reached")
	assert.Len(t, term.PFs, logoffMaxPF)
}

func TestSignOnSkipsWhenAlreadySignedOn(t *testing.T) {
	term := fake.NewSession("t1")
	term.OnScreenContains = func(text string) bool { return text == "Fire System Selection" }

	s := &Login{Auth: fastWaits}
	err := s.Authenticate(context.Background(), term, ast.Credentials{Username: "USER01", Password: "pw"})
	require.NoError(t, err)
	assert.Empty(t, term.Filled)
	assert.Zero(t, term.SubmitCount())
}

func TestSignOnFillsFieldsAndSubmits(t *testing.T) {
	term := fake.NewSession("t1")
	signedOn := false
	term.OnScreenContains = func(text string) bool {
		return signedOn && text == "Fire System Selection"
	}
	term.OnSubmit = func() error {
		signedOn = true
		return nil
	}

	s := &Login{Auth: fastWaits}
	err := s.Authenticate(context.Background(), term, ast.Credentials{Username: "USER01", Password: "secret"})
	require.NoError(t, err)

	assert.Equal(t, "USER01", term.Filled["Userid"])
	assert.Equal(t, "secret", term.Filled["Password"])
	assert.Equal(t, "FIRE06", term.Filled["Application"])
	assert.Equal(t, "@OOFIRE", term.Filled["Group"])
	assert.Equal(t, 1, term.SubmitCount())
}

func TestSignOnTimesOut(t *testing.T) {
	term := fake.NewSession("t1")
	term.OnScreenContains = func(string) bool { return false }

	s := &Login{Auth: ast.AuthDefaults{MaxWait: 30 * time.Millisecond, WaitSleep: 5 * time.Millisecond}}
	err := s.Authenticate(context.Background(), term, ast.Credentials{Username: "USER01", Password: "pw"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected screen not reached")
}

func TestDecomposePendKey(t *testing.T) {
	item, err := decomposePendKey(PendingRecord{Key: "NY1POL4567", Date: "2025-06-02"})
	require.NoError(t, err)
	assert.Equal(t, "NY", item.StateCode)
	assert.Equal(t, "1", item.UniqueDigit)
	assert.Equal(t, "POL4567", item.PolicyNumber)
	assert.Equal(t, "NY1POL4567", item.PendKey)
	assert.Equal(t, "2025-06-02", item.PendDate)

	_, err = decomposePendKey(PendingRecord{Key: "SHORT"})
	require.Error(t, err)
}

type stubPending struct {
	recs []PendingRecord
	err  error
}

func (s stubPending) FetchPending(context.Context, string) ([]PendingRecord, error) {
	return s.recs, s.err
}

type stubReport struct {
	rows []ReportRow
	err  error
}

func (s stubReport) FetchReport(context.Context, string) ([]ReportRow, error) {
	return s.rows, s.err
}

func TestBiRenewPrepareItems(t *testing.T) {
	s := &BiRenew{
		Pending: stubPending{recs: []PendingRecord{
			{Key: "NY1POL0001", Info: "BI_RENEW", Date: "2025-06-02"},
			{Key: "CA2POL0002", Info: "BI_RENEW", Date: "2025-06-02"},
			{Key: "TX3POL0003", Info: "BI_RENEW", Date: "2025-06-02"},
			{Key: "BAD", Info: "BI_RENEW", Date: "2025-06-02"}, // malformed, skipped
		}},
		Report: stubReport{rows: []ReportRow{
			{PolicyNumber: "POL0002", Queue: "EC"},   // excluded queue
			{PolicyNumber: "POL0001", Queue: "PND1"},
			{PolicyNumber: "POL0001", Queue: "PND2"},
			{PolicyNumber: "POL0003", Queue: "OTHER"},
		}},
	}

	rt := ast.NewRuntime("s1", "e1", "bi_renew", nil)
	items, err := s.PrepareItems(context.Background(), rt, protocol.RunParams{Date: "2025-06-02"})
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0].(RenewalItem)
	assert.Equal(t, "POL0001", first.PolicyNumber)
	assert.Equal(t, 2, first.PndCount, "PND queues counted per policy")

	second := items[1].(RenewalItem)
	assert.Equal(t, "POL0003", second.PolicyNumber)
	assert.Zero(t, second.PndCount)
}

func TestBiRenewPrepareItemsWithoutSources(t *testing.T) {
	s := &BiRenew{}
	rt := ast.NewRuntime("s1", "e1", "bi_renew", nil)
	_, err := s.PrepareItems(context.Background(), rt, protocol.RunParams{})
	require.Error(t, err)
}

func TestBiRenewPrepareItemsPendingError(t *testing.T) {
	s := &BiRenew{
		Pending: stubPending{err: errors.New("db down")},
		Report:  stubReport{},
	}
	rt := ast.NewRuntime("s1", "e1", "bi_renew", nil)
	_, err := s.PrepareItems(context.Background(), rt, protocol.RunParams{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetch pending records")
}

func TestBiRenewNoPendingRecords(t *testing.T) {
	s := &BiRenew{Pending: stubPending{}, Report: stubReport{}}
	rt := ast.NewRuntime("s1", "e1", "bi_renew", nil)
	items, err := s.PrepareItems(context.Background(), rt, protocol.RunParams{})
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestBiRenewValidateItem(t *testing.T) {
	s := &BiRenew{}
	assert.True(t, s.ValidateItem(RenewalItem{PolicyNumber: "POL0001"}))
	assert.False(t, s.ValidateItem(RenewalItem{PolicyNumber: "SHORT"}))
	assert.False(t, s.ValidateItem("POL0001"), "bare strings are not renewal items")
}

func TestBiRenewProcessSingleItem(t *testing.T) {
	s := &BiRenew{Auth: fastWaits}
	term := fake.NewSession("t1")
	term.Screen = "RENEWAL POL0001 Transaction complete"
	shots := &ast.Shots{}

	item := RenewalItem{PolicyNumber: "POL0001", StateCode: "NY", PendKey: "NY1POL0001", PndCount: 2}
	data, err := s.ProcessSingleItem(context.Background(), term, shots, item, 1, 1)
	require.NoError(t, err)

	assert.Equal(t, "POL0001", data["policyNumber"])
	assert.Equal(t, "NY", data["stateCode"])
	assert.Equal(t, 2, data["pndCount"])

	assert.Equal(t, "POL0001", term.Filled["Policy"])
	assert.Equal(t, 2, term.SubmitCount(), "open plus confirm")
	assert.Equal(t, []int{3}, term.PFs)

	captures := shots.List()
	require.Len(t, captures, 2)
	assert.Equal(t, "renewal", captures[0].Label)
	assert.Equal(t, "confirmation", captures[1].Label)
}

func TestSQLPendingSource(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "pending.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	_, err = db.ExecContext(ctx, `CREATE TABLE NZ490 (
		PEND_KEY TEXT, PEND_CODE TEXT, PEND_INFO TEXT, PEND_DATE TEXT
	)`)
	require.NoError(t, err)

	rows := [][4]string{
		{"NY1POL0001", "21", "BI_RENEW", "2025-06-02"},
		{"CA2POL0002", "21", "BI_RENEW", "2025-06-02"},
		{"TX3POL0003", "21", "BI_RENEW", "2025-06-03"}, // other date
		{"WA4POL0004", "22", "BI_RENEW", "2025-06-02"}, // other code
		{"OR5POL0005", "21", "CANCEL", "2025-06-02"},   // other info
	}
	for _, r := range rows {
		_, err = db.ExecContext(ctx,
			"INSERT INTO NZ490 (PEND_KEY, PEND_CODE, PEND_INFO, PEND_DATE) VALUES (?, ?, ?, ?)",
			r[0], r[1], r[2], r[3])
		require.NoError(t, err)
	}

	src := &SQLPendingSource{DB: db}
	recs, err := src.FetchPending(ctx, "2025-06-02")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "NY1POL0001", recs[0].Key)
	assert.Equal(t, "BI_RENEW", recs[0].Info)
	assert.Equal(t, "2025-06-02", recs[0].Date)
	assert.Equal(t, "CA2POL0002", recs[1].Key)
}

func TestCSVReportSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report-2025-06-02.csv")
	require.NoError(t, os.WriteFile(path, []byte(
		"policy,queue\nPOL0001,PND1\nPOL0002,EC\n,EMPTY\nPOL0003,OTHER\n"), 0o600))

	src := &CSVReportSource{PathPattern: filepath.Join(dir, "report-%s.csv")}
	rowsOut, err := src.FetchReport(context.Background(), "2025-06-02")
	require.NoError(t, err)
	require.Len(t, rowsOut, 3, "header and blank rows dropped")
	assert.Equal(t, ReportRow{PolicyNumber: "POL0001", Queue: "PND1"}, rowsOut[0])
	assert.Equal(t, ReportRow{PolicyNumber: "POL0002", Queue: "EC"}, rowsOut[1])
}

func TestCSVReportSourceMissingFile(t *testing.T) {
	src := &CSVReportSource{PathPattern: filepath.Join(t.TempDir(), "missing.csv")}
	_, err := src.FetchReport(context.Background(), "2025-06-02")
	require.Error(t, err)
}

func TestRegisterAll(t *testing.T) {
	reg := ast.NewRegistry()
	RegisterAll(reg, Deps{Pending: stubPending{}, Report: stubReport{}, Auth: fastWaits})

	assert.Equal(t, []string{"bi_renew", "login"}, reg.Names())

	script, err := reg.Get("bi_renew")
	require.NoError(t, err)
	br, ok := script.(*BiRenew)
	require.True(t, ok)
	assert.NotNil(t, br.Pending)
	assert.NotNil(t, br.Report)
}
