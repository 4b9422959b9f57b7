package ledger

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// sheetsAPI is the slice of the Google Sheets API the ledger needs.
type sheetsAPI interface {
	// Tabs returns the sheet id of every tab, keyed by title.
	Tabs(ctx context.Context) (map[string]int64, error)
	// AddTab creates a right-to-left tab and returns its sheet id. A nil
	// index appends the tab at the end.
	AddTab(ctx context.Context, title string, index *int64) (int64, error)
	// FormatHeader styles and freezes the first row of a tab.
	FormatHeader(ctx context.Context, sheetID int64, background *sheets.Color) error
	// WriteRow overwrites the cells of rng with one row.
	WriteRow(ctx context.Context, rng string, row []interface{}) error
	// AppendRow appends one row after the last row of rng.
	AppendRow(ctx context.Context, rng string, row []interface{}) error
	// Column returns the formatted values of a single-column range.
	Column(ctx context.Context, rng string) ([]string, error)
}

var (
	invoiceHeaderColor = &sheets.Color{Red: 0.2, Green: 0.4, Blue: 0.6}
	usersHeaderColor   = &sheets.Color{Red: 0.1, Green: 0.5, Blue: 0.3}
)

// Sheets is a Ledger backed by one Google spreadsheet with a tab per
// submitter. Tabs are created on first use and remembered for the life of
// the process.
type Sheets struct {
	api    sheetsAPI
	layout Layout
	now    func() time.Time

	mu         sync.Mutex
	tabs       map[int64]string
	usersReady bool
	logged     map[int64]bool
}

// NewSheets connects to the spreadsheet using Application Default
// Credentials.
func NewSheets(ctx context.Context, spreadsheetID string, layout Layout, opts ...option.ClientOption) (*Sheets, error) {
	opts = append([]option.ClientOption{option.WithScopes(sheets.SpreadsheetsScope)}, opts...)
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("ledger.NewSheets: create sheets service: %w", err)
	}
	return newSheets(&googleSheets{svc: svc, spreadsheetID: spreadsheetID}, layout), nil
}

func newSheets(api sheetsAPI, layout Layout) *Sheets {
	return &Sheets{
		api:    api,
		layout: layout,
		now:    time.Now,
		tabs:   make(map[int64]string),
		logged: make(map[int64]bool),
	}
}

// Append implements Ledger.
func (s *Sheets) Append(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error {
	tab, err := s.submitterTab(ctx, sub)
	if err != nil {
		return err
	}

	row := s.layout.Row(rec, link)
	if err := s.api.AppendRow(ctx, a1(tab, "A:"+LastColumn()), row); err != nil {
		return fmt.Errorf("ledger.Sheets.Append: append row to %q: %w", tab, err)
	}

	log := logger.FromContext(ctx)
	log.Info().
		Str("tab", tab).
		Str("category", rec.Category.ID()).
		Msg("Invoice appended to sheet")
	return nil
}

// submitterTab returns the tab of sub, creating and formatting it when it
// does not exist yet.
func (s *Sheets) submitterTab(ctx context.Context, sub pending.Submitter) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tab, ok := s.tabs[sub.ID]; ok {
		return tab, nil
	}

	tab := TabName(sub)
	created, err := s.ensureTab(ctx, tab, nil, s.layout.Headers(), invoiceHeaderColor)
	if err != nil {
		return "", fmt.Errorf("ledger.Sheets: provision tab %q: %w", tab, err)
	}
	if created {
		log := logger.FromContext(ctx)
		log.Info().Str("tab", tab).Int64("submitter_id", sub.ID).Msg("Created submitter tab")
	}

	s.tabs[sub.ID] = tab
	return tab, nil
}

// ensureTab creates tab with a formatted header row unless it exists. An
// existing tab whose first row is empty gets its header written again.
// The caller holds s.mu.
func (s *Sheets) ensureTab(ctx context.Context, tab string, index *int64, headers []string, color *sheets.Color) (bool, error) {
	existing, err := s.api.Tabs(ctx)
	if err != nil {
		return false, fmt.Errorf("list tabs: %w", err)
	}
	if sheetID, ok := existing[tab]; ok {
		return false, s.repairHeader(ctx, tab, sheetID, headers, color)
	}

	sheetID, err := s.api.AddTab(ctx, tab, index)
	if err != nil {
		// Another instance may have created it in the meantime.
		if again, lerr := s.api.Tabs(ctx); lerr == nil {
			if id, ok := again[tab]; ok {
				return false, s.repairHeader(ctx, tab, id, headers, color)
			}
		}
		return false, fmt.Errorf("add tab: %w", err)
	}

	return true, s.writeHeader(ctx, tab, sheetID, headers, color)
}

func (s *Sheets) repairHeader(ctx context.Context, tab string, sheetID int64, headers []string, color *sheets.Color) error {
	first, err := s.api.Column(ctx, a1(tab, "A1:A1"))
	if err != nil {
		return fmt.Errorf("read header: %w", err)
	}
	if len(first) > 0 && first[0] != "" {
		return nil
	}
	log := logger.FromContext(ctx)
	log.Warn().Str("tab", tab).Msg("Tab has no header row, writing it")
	return s.writeHeader(ctx, tab, sheetID, headers, color)
}

func (s *Sheets) writeHeader(ctx context.Context, tab string, sheetID int64, headers []string, color *sheets.Color) error {
	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	last := invoice.ColumnName(len(headers) - 1)
	if err := s.api.WriteRow(ctx, a1(tab, "A1:"+last+"1"), header); err != nil {
		return fmt.Errorf("write headers: %w", err)
	}
	if err := s.api.FormatHeader(ctx, sheetID, color); err != nil {
		return fmt.Errorf("format headers: %w", err)
	}
	return nil
}

// LogUser implements UserLog. The users tab is checked before appending,
// so a restart does not produce duplicate rows.
func (s *Sheets) LogUser(ctx context.Context, sub pending.Submitter) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.logged[sub.ID] {
		return nil
	}

	if !s.usersReady {
		first := int64(0)
		if _, err := s.ensureTab(ctx, UsersTab, &first, s.layout.UserHeaders(), usersHeaderColor); err != nil {
			return fmt.Errorf("ledger.Sheets.LogUser: provision users tab: %w", err)
		}
		s.usersReady = true
	}

	id := strconv.FormatInt(sub.ID, 10)
	ids, err := s.api.Column(ctx, a1(UsersTab, "C:C"))
	if err != nil {
		return fmt.Errorf("ledger.Sheets.LogUser: read user ids: %w", err)
	}
	for _, existing := range ids {
		if existing == id {
			s.logged[sub.ID] = true
			return nil
		}
	}

	// The apostrophe keeps the id as text so it is read back verbatim.
	row := []interface{}{s.now().Format("02/01/2006 15:04:05"), sub.DisplayName, "'" + id}
	if err := s.api.AppendRow(ctx, a1(UsersTab, "A:C"), row); err != nil {
		return fmt.Errorf("ledger.Sheets.LogUser: append user: %w", err)
	}

	s.logged[sub.ID] = true
	log := logger.FromContext(ctx)
	log.Info().Int64("submitter_id", sub.ID).Str("name", sub.DisplayName).Msg("Logged new user")
	return nil
}

// googleSheets implements sheetsAPI on the generated Sheets v4 client.
type googleSheets struct {
	svc           *sheets.Service
	spreadsheetID string
}

func (g *googleSheets) Tabs(ctx context.Context) (map[string]int64, error) {
	resp, err := g.svc.Spreadsheets.Get(g.spreadsheetID).Fields("sheets.properties(sheetId,title)").Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	tabs := make(map[string]int64, len(resp.Sheets))
	for _, sh := range resp.Sheets {
		if sh.Properties != nil {
			tabs[sh.Properties.Title] = sh.Properties.SheetId
		}
	}
	return tabs, nil
}

func (g *googleSheets) AddTab(ctx context.Context, title string, index *int64) (int64, error) {
	props := &sheets.SheetProperties{Title: title, RightToLeft: true}
	if index != nil {
		props.Index = *index
		props.ForceSendFields = []string{"Index"}
	}

	resp, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{AddSheet: &sheets.AddSheetRequest{Properties: props}}},
	}).Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	if len(resp.Replies) == 0 || resp.Replies[0].AddSheet == nil || resp.Replies[0].AddSheet.Properties == nil {
		return 0, fmt.Errorf("add tab %q: empty reply", title)
	}
	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

func (g *googleSheets) FormatHeader(ctx context.Context, sheetID int64, background *sheets.Color) error {
	_, err := g.svc.Spreadsheets.BatchUpdate(g.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{
				RepeatCell: &sheets.RepeatCellRequest{
					Range: &sheets.GridRange{
						SheetId:         sheetID,
						StartRowIndex:   0,
						EndRowIndex:     1,
						ForceSendFields: []string{"SheetId", "StartRowIndex"},
					},
					Cell: &sheets.CellData{
						UserEnteredFormat: &sheets.CellFormat{
							BackgroundColor: background,
							TextFormat: &sheets.TextFormat{
								Bold:            true,
								ForegroundColor: &sheets.Color{Red: 1, Green: 1, Blue: 1},
							},
							HorizontalAlignment: "CENTER",
						},
					},
					Fields: "userEnteredFormat(backgroundColor,textFormat,horizontalAlignment)",
				},
			},
			{
				UpdateSheetProperties: &sheets.UpdateSheetPropertiesRequest{
					Properties: &sheets.SheetProperties{
						SheetId:         sheetID,
						GridProperties:  &sheets.GridProperties{FrozenRowCount: 1},
						ForceSendFields: []string{"SheetId"},
					},
					Fields: "gridProperties.frozenRowCount",
				},
			},
		},
	}).Context(ctx).Do()
	return err
}

func (g *googleSheets) WriteRow(ctx context.Context, rng string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Update(g.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	return err
}

func (g *googleSheets) AppendRow(ctx context.Context, rng string, row []interface{}) error {
	_, err := g.svc.Spreadsheets.Values.Append(g.spreadsheetID, rng, &sheets.ValueRange{
		Values: [][]interface{}{row},
	}).ValueInputOption("USER_ENTERED").InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	return err
}

func (g *googleSheets) Column(ctx context.Context, rng string) ([]string, error) {
	resp, err := g.svc.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) > 0 {
			out = append(out, fmt.Sprint(row[0]))
		}
	}
	return out, nil
}

var (
	_ Ledger  = (*Sheets)(nil)
	_ UserLog = (*Sheets)(nil)
)
