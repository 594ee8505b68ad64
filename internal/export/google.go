package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"conti/internal/ledger"
)

// SheetsWriter appends one row per pairwise debt to a Google Sheet after each
// balance recomputation.
type SheetsWriter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ StatementWriter = (*SheetsWriter)(nil)

// NewSheetsWriter creates a writer using service account credentials.
// Credentials come from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE,
// or GOOGLE_APPLICATION_CREDENTIALS.
func NewSheetsWriter(ctx context.Context, spreadsheetID, sheetName string) (*SheetsWriter, error) {
	if strings.TrimSpace(spreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if strings.TrimSpace(sheetName) == "" {
		return nil, errors.New("missing sheet name")
	}

	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}

	return &SheetsWriter{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetName:     sheetName,
	}, nil
}

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

// AppendStatement appends one row per debt. A fully settled group still gets
// a marker row so the trail shows the recomputation happened.
func (w *SheetsWriter) AppendStatement(ctx context.Context, groupID, groupName string, debts []ledger.PairwiseDebt) error {
	now := time.Now().UTC().Format(time.RFC3339)

	var rows [][]interface{}
	if len(debts) == 0 {
		rows = append(rows, []interface{}{now, groupID, groupName, "", "", "settled"})
	}
	for _, d := range debts {
		rows = append(rows, []interface{}{
			now,
			groupID,
			groupName,
			d.DebtorName,
			d.CreditorName,
			d.Amount.String(),
		})
	}

	valueRange := &gsheet.ValueRange{Values: rows}
	_, err := w.svc.Spreadsheets.Values.
		Append(w.spreadsheetID, w.sheetName+"!A:F", valueRange).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("append statement rows: %w", err)
	}

	slog.InfoContext(ctx, "Statement appended",
		"group_id", groupID,
		"rows", len(rows),
		"sheet", w.sheetName)

	return nil
}
