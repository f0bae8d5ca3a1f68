// Package sheets mirrors monthly spending summaries to a Google Sheet.
package sheets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/log"
	"finwatch/internal/services"

	"golang.org/x/oauth2"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

const DefaultSheetName = "Summaries"

// Config selects the spreadsheet and the credentials used to reach it.
// Exactly one credential source is needed; service accounts win over a token.
type Config struct {
	SpreadsheetID      string
	SheetName          string
	ServiceAccountJSON string
	ServiceAccountFile string
	// OAuthTokenJSON is a serialized oauth2.Token, for personal spreadsheets.
	OAuthTokenJSON string
}

// Exporter appends one row per summary: period, user, total, generated at.
type Exporter struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
}

var _ services.SummaryExporter = (*Exporter)(nil)

func New(ctx context.Context, cfg Config, opts ...goption.ClientOption) (*Exporter, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing GOOGLE_SPREADSHEET_ID")
	}
	if cfg.SheetName == "" {
		cfg.SheetName = DefaultSheetName
	}

	if len(opts) == 0 {
		auth, err := credentialOption(cfg)
		if err != nil {
			return nil, err
		}
		opts = []goption.ClientOption{auth, goption.WithScopes(gsheet.SpreadsheetsScope)}
	}

	svc, err := gsheet.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets summary export enabled",
		log.FieldComponent, log.ComponentExport,
		"spreadsheet_id", cfg.SpreadsheetID,
		"sheet", cfg.SheetName)

	return &Exporter{svc: svc, spreadsheetID: cfg.SpreadsheetID, sheetName: cfg.SheetName}, nil
}

func credentialOption(cfg Config) (goption.ClientOption, error) {
	accountFile := strings.TrimSpace(cfg.ServiceAccountFile)
	if cfg.ServiceAccountJSON == "" && accountFile == "" {
		accountFile = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case strings.TrimSpace(cfg.ServiceAccountJSON) != "":
		return goption.WithCredentialsJSON([]byte(cfg.ServiceAccountJSON)), nil
	case accountFile != "":
		data, err := os.ReadFile(accountFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return goption.WithCredentialsJSON(data), nil
	case strings.TrimSpace(cfg.OAuthTokenJSON) != "":
		var token oauth2.Token
		if err := json.Unmarshal([]byte(cfg.OAuthTokenJSON), &token); err != nil {
			return nil, fmt.Errorf("parse oauth token: %w", err)
		}
		if token.AccessToken == "" {
			return nil, errors.New("oauth token has no access_token")
		}
		return goption.WithTokenSource(oauth2.StaticTokenSource(&token)), nil
	default:
		return nil, errors.New("missing sheets credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, GOOGLE_APPLICATION_CREDENTIALS or GOOGLE_OAUTH_TOKEN_JSON)")
	}
}

// ExportSummaries appends the rows in one request.
func (e *Exporter) ExportSummaries(ctx context.Context, summaries []services.Summary) error {
	if e.svc == nil {
		return errors.New("sheets service not initialized")
	}
	if len(summaries) == 0 {
		return nil
	}

	rng := fmt.Sprintf("%s!A:D", e.sheetName)
	vr := &gsheet.ValueRange{Values: Rows(summaries)}
	_, err := e.svc.Spreadsheets.Values.Append(e.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("append summaries to %s: %w", e.sheetName, err)
	}

	slog.InfoContext(ctx, "Exported summaries",
		log.FieldComponent, log.ComponentExport,
		"rows", len(summaries),
		"sheet", e.sheetName)
	return nil
}

// Rows renders summaries as sheet rows.
func Rows(summaries []services.Summary) [][]any {
	out := make([][]any, 0, len(summaries))
	for _, s := range summaries {
		out = append(out, []any{
			s.Period.Key(),
			s.UserID,
			core.FormatAmount(s.Total),
			s.GeneratedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}
