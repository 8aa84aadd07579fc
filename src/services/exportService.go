package services

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/enzococca/mekan-admin/src/models"
	"github.com/go-pdf/fpdf"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	ContentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	ContentTypePDF  = "application/pdf"

	exportTimeLayout = "20060102_150405"
	maxColumnWidth   = 50
)

// ExportFile is a rendered download.
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

type ExportService struct {
	entities *EntityService
	now      func() time.Time
}

func NewExportService(entities *EntityService) *ExportService {
	return &ExportService{entities: entities, now: time.Now}
}

// Excel exports every record of e matching p to a single-sheet workbook.
// name is the entity as requested and titles the sheet and the file.
func (s *ExportService) Excel(ctx context.Context, e *models.EntityDef, name string, p ListParams) (*ExportFile, error) {
	rows, err := s.entities.All(ctx, e, p)
	if err != nil {
		return nil, err
	}
	data, err := renderWorkbook(sheetName(name), e.ColumnNames(), rows)
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		Name:        fmt.Sprintf("%s_%s.xlsx", safeFilePart(name), s.now().Format(exportTimeLayout)),
		ContentType: ContentTypeXLSX,
		Data:        data,
	}, nil
}

// PDF renders one record as a label/value sheet.
func (s *ExportService) PDF(ctx context.Context, e *models.EntityDef, name, id string) (*ExportFile, error) {
	row, err := s.entities.GetPlain(ctx, e, id)
	if err != nil {
		return nil, err
	}
	now := s.now()
	title := fmt.Sprintf("%s - %s", strings.ToUpper(name), id)
	data, err := renderRecordPDF(title, row, now)
	if err != nil {
		return nil, err
	}
	return &ExportFile{
		Name:        fmt.Sprintf("%s_%s_%s.pdf", safeFilePart(name), safeFilePart(id), now.Format(exportTimeLayout)),
		ContentType: ContentTypePDF,
		Data:        data,
	}, nil
}

func isGeometryColumn(name string) bool {
	return strings.Contains(strings.ToLower(name), "geom")
}

// sheetName upper-cases the first letter and lower-cases the rest.
func sheetName(name string) string {
	if name == "" {
		return "Sheet1"
	}
	lower := strings.ToLower(name)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

// exportColumns takes the columns of the first row, or header when there are no rows.
func exportColumns(header []string, rows []*Row) []string {
	if len(rows) > 0 {
		header = rows[0].Keys()
	}
	var cols []string
	for _, k := range header {
		if !isGeometryColumn(k) {
			cols = append(cols, k)
		}
	}
	return cols
}

func renderWorkbook(sheet string, header []string, rows []*Row) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}

	cols := exportColumns(header, rows)
	widths := make([]int, len(cols))
	for i, col := range cols {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheet, cell, col); err != nil {
			return nil, err
		}
		widths[i] = len(col)
	}

	for r, row := range rows {
		for i, col := range cols {
			v, _ := row.Get(col)
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(i+1, r+2)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheet, cell, v); err != nil {
				return nil, err
			}
			if n := len(row.String(col)); n > widths[i] {
				widths[i] = n
			}
		}
	}

	if len(cols) > 0 {
		bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
		if err != nil {
			return nil, err
		}
		last, _ := excelize.CoordinatesToCellName(len(cols), 1)
		if err := f.SetCellStyle(sheet, "A1", last, bold); err != nil {
			return nil, err
		}
	}
	for i, w := range widths {
		name, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(sheet, name, name, float64(min(w+2, maxColumnWidth))); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

var titleCaser = cases.Title(language.Und)

// fieldLabel turns a snake_case column into a Title Case label.
func fieldLabel(col string) string {
	return titleCaser.String(strings.ReplaceAll(col, "_", " "))
}

func renderRecordPDF(title string, row *Row, generated time.Time) ([]byte, error) {
	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetTitle(title, true)
	pdf.SetMargins(15, 15, 15)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "L", false, 0, "")
	pdf.Ln(4)

	for _, k := range row.Keys() {
		v, _ := row.Get(k)
		if v == nil || isGeometryColumn(k) {
			continue
		}
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(55, 7, tr(fieldLabel(k)), "1", 0, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 7, tr(formatValue(v)), "1", "L", false)
	}

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.CellFormat(0, 6, "Generated: "+generated.Format("2006-01-02 15:04:05"), "", 1, "L", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func formatValue(v any) string {
	switch t := v.(type) {
	case time.Time:
		return t.Format("2006-01-02 15:04:05")
	case bool:
		if t {
			return "Yes"
		}
		return "No"
	}
	return fmt.Sprint(v)
}

// safeFilePart keeps identifiers usable inside a download file name.
func safeFilePart(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '"', ' ':
			return '-'
		}
		return r
	}, s)
}
