package sheets

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/Veraticus/gigproof/internal/common"
	"github.com/Veraticus/gigproof/internal/model"
	"github.com/Veraticus/gigproof/internal/service"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

// Writer renders report payloads into a Google spreadsheet.
type Writer struct {
	service  *sheets.Service
	logger   *slog.Logger
	location *time.Location
	config   Config
}

// NewWriter creates a new Google Sheets report writer. Extra client options
// are passed to the Sheets service after the configured credentials.
func NewWriter(ctx context.Context, config Config, opts ...option.ClientOption) (*Writer, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	srv, err := createSheetsService(ctx, config, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return newWriter(srv, config), nil
}

func newWriter(srv *sheets.Service, config Config) *Writer {
	loc := time.UTC
	if config.TimeZone != "" {
		if l, err := time.LoadLocation(config.TimeZone); err == nil {
			loc = l
		}
	}
	if config.TitlePrefix == "" {
		config.TitlePrefix = DefaultConfig().TitlePrefix
	}

	return &Writer{
		service:  srv,
		config:   config,
		location: loc,
		logger:   slog.Default().With("component", "sheets"),
	}
}

// Write renders payload into the configured spreadsheet, or a new one named
// after the verification code.
func (w *Writer) Write(ctx context.Context, payload *model.ReportPayload) error {
	if payload == nil {
		return fmt.Errorf("nil report payload")
	}

	w.logger.Info("starting report generation",
		"report_id", payload.ReportID,
		"platforms", len(payload.Summary.PlatformBreakdown))

	data := buildTabData(payload, w.config, w.location)

	retryOpts := service.RetryOptions{
		MaxAttempts:  max(w.config.RetryAttempts, 1),
		InitialDelay: w.config.RetryDelay,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}

	var (
		spreadsheetID string
		tabIDs        map[string]int64
	)
	err := common.WithRetry(ctx, func() error {
		var err error
		spreadsheetID, tabIDs, err = w.prepareSpreadsheet(ctx, data.Title)
		return retryable(err)
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to prepare spreadsheet: %w", err)
	}

	err = common.WithRetry(ctx, func() error {
		return retryable(w.writeData(ctx, spreadsheetID, data))
	}, retryOpts)
	if err != nil {
		return fmt.Errorf("failed to write data: %w", err)
	}

	if w.config.EnableFormatting {
		err = common.WithRetry(ctx, func() error {
			return retryable(w.applyFormatting(ctx, spreadsheetID, tabIDs))
		}, retryOpts)
		if err != nil {
			// Values are already written; formatting is cosmetic
			w.logger.Warn("failed to apply formatting", "error", err)
		}
	}

	w.logger.Info("report generation completed",
		"spreadsheet_id", spreadsheetID,
		"report_id", payload.ReportID)

	return nil
}

// retryable marks Sheets API failures as retryable.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	return &common.RetryableError{Err: err, Retryable: true}
}

// createSheetsService creates a Google Sheets API service.
func createSheetsService(ctx context.Context, config Config, opts ...option.ClientOption) (*sheets.Service, error) {
	var tokenSource oauth2.TokenSource

	if config.ServiceAccountPath != "" {
		jsonKey, err := os.ReadFile(config.ServiceAccountPath)
		if err != nil {
			return nil, fmt.Errorf("unable to read service account key file: %w", err)
		}

		jwtConfig, err := google.JWTConfigFromJSON(jsonKey, sheets.SpreadsheetsScope)
		if err != nil {
			return nil, fmt.Errorf("unable to parse service account key: %w", err)
		}

		tokenSource = jwtConfig.TokenSource(ctx)
	} else {
		client := oauthConfig(config.ClientID, config.ClientSecret, "")
		tokenSource = client.TokenSource(ctx, &oauth2.Token{
			RefreshToken: config.RefreshToken,
			TokenType:    "Bearer",
		})
	}

	opts = append([]option.ClientOption{option.WithHTTPClient(oauth2.NewClient(ctx, tokenSource))}, opts...)
	srv, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to create sheets service: %w", err)
	}

	return srv, nil
}

// prepareSpreadsheet returns the target spreadsheet's ID and the sheet IDs
// of its report tabs, creating whatever is missing.
func (w *Writer) prepareSpreadsheet(ctx context.Context, title string) (string, map[string]int64, error) {
	if w.config.SpreadsheetID == "" {
		return w.createSpreadsheet(ctx, title)
	}

	existing, err := w.service.Spreadsheets.Get(w.config.SpreadsheetID).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to access spreadsheet %s: %w", w.config.SpreadsheetID, err)
	}

	tabIDs := sheetIDs(existing.Sheets)
	var requests []*sheets.Request
	for _, tab := range Tabs {
		if _, ok := tabIDs[tab]; !ok {
			requests = append(requests, &sheets.Request{
				AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: tab}},
			})
		}
	}

	if len(requests) > 0 {
		resp, err := w.service.Spreadsheets.BatchUpdate(w.config.SpreadsheetID,
			&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
		if err != nil {
			return "", nil, fmt.Errorf("unable to add report tabs: %w", err)
		}
		for _, reply := range resp.Replies {
			if reply.AddSheet != nil && reply.AddSheet.Properties != nil {
				tabIDs[reply.AddSheet.Properties.Title] = reply.AddSheet.Properties.SheetId
			}
		}
	}

	for _, tab := range Tabs {
		rng := fmt.Sprintf("'%s'!A:Z", tab)
		if _, err := w.service.Spreadsheets.Values.Clear(w.config.SpreadsheetID, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
			return "", nil, fmt.Errorf("unable to clear %s: %w", tab, err)
		}
	}

	return w.config.SpreadsheetID, tabIDs, nil
}

func (w *Writer) createSpreadsheet(ctx context.Context, title string) (string, map[string]int64, error) {
	spreadsheet := &sheets.Spreadsheet{
		Properties: &sheets.SpreadsheetProperties{
			Title:    title,
			TimeZone: w.config.TimeZone,
		},
	}
	for i, tab := range Tabs {
		spreadsheet.Sheets = append(spreadsheet.Sheets, &sheets.Sheet{
			Properties: &sheets.SheetProperties{Title: tab, SheetId: int64(i), Index: int64(i)},
		})
	}

	created, err := w.service.Spreadsheets.Create(spreadsheet).Context(ctx).Do()
	if err != nil {
		return "", nil, fmt.Errorf("unable to create spreadsheet: %w", err)
	}

	w.logger.Info("created new spreadsheet",
		"id", created.SpreadsheetId,
		"url", created.SpreadsheetUrl)

	return created.SpreadsheetId, sheetIDs(created.Sheets), nil
}

func sheetIDs(list []*sheets.Sheet) map[string]int64 {
	ids := make(map[string]int64, len(list))
	for _, s := range list {
		if s.Properties != nil {
			ids[s.Properties.Title] = s.Properties.SheetId
		}
	}
	return ids
}

// writeData writes every tab in one batch request.
func (w *Writer) writeData(ctx context.Context, spreadsheetID string, data TabData) error {
	req := &sheets.BatchUpdateValuesRequest{ValueInputOption: "USER_ENTERED"}
	for _, tab := range Tabs {
		req.Data = append(req.Data, &sheets.ValueRange{
			Range:  fmt.Sprintf("'%s'!A1", tab),
			Values: data.Values(tab),
		})
	}

	_, err := w.service.Spreadsheets.Values.BatchUpdate(spreadsheetID, req).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("failed to write report values: %w", err)
	}

	w.logger.Debug("wrote report values", "tabs", len(req.Data))
	return nil
}

// applyFormatting bolds the title and label column, formats money cells and
// sizes columns to fit.
func (w *Writer) applyFormatting(ctx context.Context, spreadsheetID string, tabIDs map[string]int64) error {
	summaryID := tabIDs[SummaryTab]
	platformsID := tabIDs[PlatformsTab]

	requests := []*sheets.Request{
		boldRange(summaryID, 0, 1, 0, 2, 14),
		boldRange(summaryID, 2, 10, 0, 1, 0),
		currencyRange(summaryID, 6, 9, 1, 2),
		boldRange(platformsID, 0, 1, 0, 3, 0),
		currencyRange(platformsID, 1, 100, 1, 2),
	}
	for _, tab := range Tabs {
		requests = append(requests, &sheets.Request{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    tabIDs[tab],
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   3,
				},
			},
		})
	}

	_, err := w.service.Spreadsheets.BatchUpdate(spreadsheetID,
		&sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	return err
}

func boldRange(sheetID, startRow, endRow, startCol, endCol int64, fontSize int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					TextFormat: &sheets.TextFormat{Bold: true, FontSize: fontSize},
				},
			},
			Fields: "userEnteredFormat.textFormat",
		},
	}
}

func currencyRange(sheetID, startRow, endRow, startCol, endCol int64) *sheets.Request {
	return &sheets.Request{
		RepeatCell: &sheets.RepeatCellRequest{
			Range: &sheets.GridRange{
				SheetId:          sheetID,
				StartRowIndex:    startRow,
				EndRowIndex:      endRow,
				StartColumnIndex: startCol,
				EndColumnIndex:   endCol,
			},
			Cell: &sheets.CellData{
				UserEnteredFormat: &sheets.CellFormat{
					NumberFormat: &sheets.NumberFormat{
						Type:    "CURRENCY",
						Pattern: "#,##0.00",
					},
				},
			},
			Fields: "userEnteredFormat.numberFormat",
		},
	}
}
