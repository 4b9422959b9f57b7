package ledger

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"strconv"
	"sync"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/dvloznov/invoice-agent/internal/invoice"
	"github.com/dvloznov/invoice-agent/internal/logger"
	"github.com/dvloznov/invoice-agent/internal/pending"
)

// defaultSheet is the placeholder sheet of a new excelize file.
const defaultSheet = "Sheet1"

// Workbook is a Ledger kept in a local XLSX file, one sheet per submitter.
// Writes are serialized; the file is reopened for every append so it can
// be inspected or copied while the service runs.
type Workbook struct {
	path   string
	layout Layout
	now    func() time.Time

	mu     sync.Mutex
	logged map[int64]bool
}

// NewWorkbook returns a ledger writing to path. The file is created on
// first append.
func NewWorkbook(path string, layout Layout) *Workbook {
	return &Workbook{
		path:   path,
		layout: layout,
		now:    time.Now,
		logged: make(map[int64]bool),
	}
}

// Append implements Ledger.
func (w *Workbook) Append(ctx context.Context, sub pending.Submitter, rec invoice.Record, link string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, fresh, err := w.open()
	if err != nil {
		return fmt.Errorf("ledger.Workbook.Append: %w", err)
	}
	defer f.Close()

	tab := TabName(sub)
	if err := w.ensureSheet(f, fresh, tab, w.layout.Headers(), "336699"); err != nil {
		return fmt.Errorf("ledger.Workbook.Append: provision sheet %q: %w", tab, err)
	}
	if err := appendSheetRow(f, tab, w.layout.Row(rec, link)); err != nil {
		return fmt.Errorf("ledger.Workbook.Append: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("ledger.Workbook.Append: save %s: %w", w.path, err)
	}

	log := logger.FromContext(ctx)
	log.Info().Str("sheet", tab).Str("path", w.path).Msg("Invoice appended to workbook")
	return nil
}

// LogUser implements UserLog.
func (w *Workbook) LogUser(ctx context.Context, sub pending.Submitter) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.logged[sub.ID] {
		return nil
	}

	f, fresh, err := w.open()
	if err != nil {
		return fmt.Errorf("ledger.Workbook.LogUser: %w", err)
	}
	defer f.Close()

	if err := w.ensureSheet(f, fresh, UsersTab, w.layout.UserHeaders(), "1A7F4D"); err != nil {
		return fmt.Errorf("ledger.Workbook.LogUser: provision users sheet: %w", err)
	}

	id := strconv.FormatInt(sub.ID, 10)
	rows, err := f.GetRows(UsersTab)
	if err != nil {
		return fmt.Errorf("ledger.Workbook.LogUser: read users: %w", err)
	}
	for i, row := range rows {
		if i > 0 && len(row) > 2 && row[2] == id {
			w.logged[sub.ID] = true
			return nil
		}
	}

	row := []interface{}{w.now().Format("02/01/2006 15:04:05"), sub.DisplayName, id}
	if err := appendSheetRow(f, UsersTab, row); err != nil {
		return fmt.Errorf("ledger.Workbook.LogUser: %w", err)
	}
	if err := f.SaveAs(w.path); err != nil {
		return fmt.Errorf("ledger.Workbook.LogUser: save %s: %w", w.path, err)
	}

	w.logged[sub.ID] = true
	return nil
}

// open loads the workbook, or starts a new one when the file does not
// exist yet. fresh reports the latter.
func (w *Workbook) open() (f *excelize.File, fresh bool, err error) {
	f, err = excelize.OpenFile(w.path)
	if err == nil {
		return f, false, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return excelize.NewFile(), true, nil
	}
	return nil, false, fmt.Errorf("open %s: %w", w.path, err)
}

// ensureSheet adds a right-to-left sheet with a styled, frozen header row
// unless one with that name exists. In a fresh file the placeholder sheet
// is dropped once a real one exists.
func (w *Workbook) ensureSheet(f *excelize.File, fresh bool, name string, headers []string, color string) error {
	idx, err := f.GetSheetIndex(name)
	if err != nil {
		return err
	}
	if idx != -1 {
		return nil
	}

	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if fresh {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return err
		}
	}
	if name == UsersTab {
		if err := f.MoveSheet(name, f.GetSheetList()[0]); err != nil {
			return err
		}
	}

	rtl := true
	if err := f.SetSheetView(name, 0, &excelize.ViewOptions{RightToLeft: &rtl}); err != nil {
		return err
	}

	header := make([]interface{}, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	if err := f.SetSheetRow(name, "A1", &header); err != nil {
		return err
	}

	style, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{color}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	if err := f.SetRowStyle(name, 1, 1, style); err != nil {
		return err
	}
	return f.SetPanes(name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})
}

func appendSheetRow(f *excelize.File, sheet string, row []interface{}) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	cell, err := excelize.CoordinatesToCellName(1, len(rows)+1)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &row); err != nil {
		return fmt.Errorf("write row %s: %w", cell, err)
	}
	return nil
}

var (
	_ Ledger  = (*Workbook)(nil)
	_ UserLog = (*Workbook)(nil)
)
