// Package sheets exports month outlooks to a Google spreadsheet through a
// service account.
package sheets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"piano/internal/core"
	"piano/internal/log"
	"piano/internal/services"
)

type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	log           *log.Logger
}

// NewFromEnv creates an exporter using environment variables.
// Required: GOOGLE_SPREADSHEET_ID and service account credentials via
// GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or
// GOOGLE_APPLICATION_CREDENTIALS.
// Optional: GOOGLE_SHEET_NAME (default "Outlook").
func NewFromEnv(ctx context.Context, logger *log.Logger) (*Exporter, error) {
	spreadsheetID := strings.TrimSpace(os.Getenv("GOOGLE_SPREADSHEET_ID"))
	if spreadsheetID == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}

	sheetName := strings.TrimSpace(os.Getenv("GOOGLE_SHEET_NAME"))
	if sheetName == "" {
		sheetName = "Outlook"
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	if logger == nil {
		logger = log.New(log.Config{Component: log.ComponentExport})
	}

	return &Exporter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
		log:           logger.WithComponent(log.ComponentExport),
	}, nil
}

// newSheetsService initializes a Sheets Service using Service Account credentials.
// Uses GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS.
func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	serviceAccountJSON := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	serviceAccountFile := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if serviceAccountJSON == "" && serviceAccountFile == "" {
		serviceAccountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var credentialsJSON []byte
	var err error

	switch {
	case serviceAccountJSON != "":
		credentialsJSON = []byte(serviceAccountJSON)
	case serviceAccountFile != "":
		credentialsJSON, err = os.ReadFile(serviceAccountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	service, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(credentialsJSON),
		goption.WithScopes(gsheet.SpreadsheetsScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return service, nil
}

// ExportOutlook overwrites the configured sheet with one month's outlook:
// per-kind totals, projected interest, and remaining budget per category.
func (e *Exporter) ExportOutlook(ctx context.Context, outlook services.MonthOutlook) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}

	rows := outlookRows(outlook)

	clearRange := fmt.Sprintf("%s!A:C", e.sheetName)
	if _, err := e.svc.Spreadsheets.Values.Clear(e.spreadsheetID, clearRange, &gsheet.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return fmt.Errorf("clear sheet %s: %w", e.sheetName, err)
	}

	writeRange := fmt.Sprintf("%s!A1", e.sheetName)
	vr := &gsheet.ValueRange{Values: rows}
	if _, err := e.svc.Spreadsheets.Values.Update(e.spreadsheetID, writeRange, vr).
		ValueInputOption("USER_ENTERED").Context(ctx).Do(); err != nil {
		return fmt.Errorf("write outlook to sheet %s: %w", e.sheetName, err)
	}

	e.log.InfoContext(ctx, "outlook exported",
		"sheet", e.sheetName,
		"year", outlook.Year,
		"month", int(outlook.Month),
		"rows", len(rows))
	return nil
}

func outlookRows(outlook services.MonthOutlook) [][]any {
	rows := [][]any{
		{"Outlook", fmt.Sprintf("%04d-%02d", outlook.Year, int(outlook.Month))},
		{},
		{"Metric", "Total (EUR)"},
	}

	for _, kind := range []core.RuleKind{core.KindIncome, core.KindExpense, core.KindSavings, core.KindBudget} {
		rows = append(rows, []any{string(kind), centsToEuros(outlook.Totals.ByKind[kind])})
	}
	rows = append(rows, []any{"interest", centsToEuros(outlook.Totals.InterestCents)})

	if len(outlook.BudgetRemainingCents) > 0 {
		rows = append(rows, []any{}, []any{"Category", "Budget remaining (EUR)"})
		categories := make([]string, 0, len(outlook.BudgetRemainingCents))
		for category := range outlook.BudgetRemainingCents {
			categories = append(categories, category)
		}
		sort.Strings(categories)
		for _, category := range categories {
			rows = append(rows, []any{category, centsToEuros(outlook.BudgetRemainingCents[category])})
		}
	}
	return rows
}

func centsToEuros(cents int64) float64 {
	return float64(cents) / 100.0
}
