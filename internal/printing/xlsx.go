package printing

import (
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	sheetName = "Invoice"
	// builtin "#,##0.00"
	numFmtAmount = 4
)

// XLSXExporter writes an invoice workbook for back-office reconciliation.
type XLSXExporter struct{}

// NewXLSXExporter constructs an exporter.
func NewXLSXExporter() *XLSXExporter {
	return &XLSXExporter{}
}

// Export renders doc into an .xlsx file.
func (e *XLSXExporter) Export(doc Document) ([]byte, error) {
	f := excelize.NewFile()
	defer func() {
		_ = f.Close()
	}()
	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return nil, err
	}
	amount, err := f.NewStyle(&excelize.Style{NumFmt: numFmtAmount})
	if err != nil {
		return nil, err
	}
	boldAmount, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}, NumFmt: numFmtAmount})
	if err != nil {
		return nil, err
	}

	header := [][2]any{
		{doc.Title, doc.Invoice.Number},
		{"Date", doc.Invoice.Header.Date + " " + doc.Invoice.Header.Time},
		{doc.PartyLabel, doc.Party.Name},
		{"Payment", string(doc.Invoice.Header.PaymentType)},
	}
	if doc.ShowAgent {
		header = append(header, [2]any{"Agent", string(doc.Invoice.Header.AgentType)})
	}
	row := 1
	for _, kv := range header {
		if err := e.setRow(f, row, kv[0], kv[1]); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, cell(1, row), cell(1, row), bold); err != nil {
			return nil, err
		}
		row++
	}

	row++
	tableTop := row
	if err := e.setRow(f, row, "#", "Product", "Warehouse", doc.QuantityHeader(), "Price ("+doc.Currency+")", "Total ("+doc.Currency+")"); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, cell(1, row), cell(6, row), bold); err != nil {
		return nil, err
	}
	for _, l := range doc.Lines {
		row++
		if err := e.setRow(f, row, l.No, l.Product, l.Warehouse,
			l.Quantity.InexactFloat64(), l.Price.InexactFloat64(), l.Total.InexactFloat64()); err != nil {
			return nil, err
		}
	}
	if row > tableTop {
		if err := f.SetCellStyle(sheetName, cell(5, tableTop+1), cell(6, row), amount); err != nil {
			return nil, err
		}
	}

	row += 2
	if err := e.setRow(f, row, "Total ("+doc.Currency+")"); err != nil {
		return nil, err
	}
	if err := f.SetCellValue(sheetName, cell(6, row), doc.Invoice.Total.InexactFloat64()); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, cell(1, row), cell(1, row), bold); err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(sheetName, cell(6, row), cell(6, row), boldAmount); err != nil {
		return nil, err
	}
	if doc.Invoice.Header.Notes != "" {
		row++
		if err := e.setRow(f, row, "Notes", doc.Invoice.Header.Notes); err != nil {
			return nil, err
		}
	}

	if err := f.SetColWidth(sheetName, "A", "A", 18); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "B", "C", 28); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(sheetName, "D", "F", 14); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("printing: write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func (e *XLSXExporter) setRow(f *excelize.File, row int, values ...any) error {
	for i, v := range values {
		if err := f.SetCellValue(sheetName, cell(i+1, row), v); err != nil {
			return err
		}
	}
	return nil
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
