package sheets

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"finwatch/internal/core"
	"finwatch/internal/services"

	"github.com/shopspring/decimal"
	goption "google.golang.org/api/option"
)

var generated = time.Date(2024, 3, 15, 6, 0, 0, 0, time.UTC)

func summaries() []services.Summary {
	march := core.Period{Year: 2024, Month: time.March}
	return []services.Summary{
		{UserID: "u1", Period: march, Total: decimal.RequireFromString("250.75"), GeneratedAt: generated},
		{UserID: "u2", Period: march, Total: decimal.Zero, GeneratedAt: generated},
	}
}

func TestRows(t *testing.T) {
	rows := Rows(summaries())
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}
	want := []any{"2024-03", "u1", "250.75", "2024-03-15T06:00:00Z"}
	for i := range want {
		if rows[0][i] != want[i] {
			t.Errorf("row[0][%d] = %v, want %v", i, rows[0][i], want[i])
		}
	}
	if rows[1][2] != "0.00" {
		t.Errorf("zero total rendered as %v", rows[1][2])
	}
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr string
	}{
		{name: "missing spreadsheet", cfg: Config{}, wantErr: "missing GOOGLE_SPREADSHEET_ID"},
		{name: "bad token", cfg: Config{SpreadsheetID: "id", OAuthTokenJSON: "not-json"}, wantErr: "parse oauth token"},
		{name: "empty token", cfg: Config{SpreadsheetID: "id", OAuthTokenJSON: `{"token_type":"Bearer"}`}, wantErr: "no access_token"},
		{name: "unreadable account file", cfg: Config{SpreadsheetID: "id", ServiceAccountFile: "/nonexistent/sa.json"}, wantErr: "read service account file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
			_, err := New(context.Background(), tt.cfg)
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("New() error = %v, want %q", err, tt.wantErr)
			}
		})
	}
}

func TestExporter_ExportSummaries(t *testing.T) {
	var gotPath string
	var gotBody struct {
		Values [][]any `json:"values"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		if r.URL.Query().Get("valueInputOption") != "USER_ENTERED" {
			t.Errorf("valueInputOption = %q", r.URL.Query().Get("valueInputOption"))
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	e, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	if err := e.ExportSummaries(context.Background(), summaries()); err != nil {
		t.Fatalf("ExportSummaries() error = %v", err)
	}
	if !strings.Contains(gotPath, "sheet-1") || !strings.HasSuffix(gotPath, ":append") {
		t.Errorf("path = %q", gotPath)
	}
	if len(gotBody.Values) != 2 || gotBody.Values[0][1] != "u1" {
		t.Errorf("values = %v", gotBody.Values)
	}
}

func TestExporter_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"code":403,"message":"denied"}}`, http.StatusForbidden)
	}))
	defer srv.Close()

	e, err := New(context.Background(), Config{SpreadsheetID: "sheet-1"},
		goption.WithEndpoint(srv.URL+"/"), goption.WithoutAuthentication())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := e.ExportSummaries(context.Background(), summaries()); err == nil {
		t.Error("ExportSummaries() should fail on a server error")
	}
}

func TestExporter_NotInitialized(t *testing.T) {
	e := &Exporter{}
	if err := e.ExportSummaries(context.Background(), summaries()); err == nil {
		t.Error("expected error with nil service")
	}
}
