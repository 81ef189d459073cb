package slip

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"
)

// Sheet renders the slip as a two-block xlsx: a summary and one row per
// product snapshot and arch.
func Sheet(p *Payload) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("sheet: nil payload")
	}
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	sheet := f.GetSheetName(f.GetActiveSheetIndex())

	summary := [][]interface{}{
		{"patient", p.FormData.Patient},
		{"doctor", p.SelectedDoctor.Name},
		{"lab", p.SelectedLab.Name},
		{"arch", string(p.SelectedArch)},
		{"stage", p.SelectedStage.Name},
		{"created_at", p.CreatedAt.Format("2006-01-02 15:04")},
	}
	row := 1
	for _, r := range summary {
		if err := setRow(f, sheet, row, r); err != nil {
			return nil, err
		}
		row++
	}
	row++

	header := []interface{}{"snapshot_id", "product_id", "product", "category", "subcategory", "arch", "grade", "stage"}
	if err := setRow(f, sheet, row, header); err != nil {
		return nil, err
	}
	row++
	for _, pr := range p.Products {
		for _, side := range archSides(pr) {
			r := []interface{}{
				pr.ID, pr.ProductID, pr.Name, pr.CategoryName, pr.SubcategoryName,
				side.label, side.cfg.Grade, side.cfg.Stage,
			}
			if err := setRow(f, sheet, row, r); err != nil {
				return nil, err
			}
			row++
		}
	}

	buf := &bytes.Buffer{}
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("sheet: write: %w", err)
	}
	return buf.Bytes(), nil
}

type archSide struct {
	label string
	cfg   ArchConfig
}

func archSides(p Product) []archSide {
	switch p.Type {
	case ArchUpper:
		return []archSide{{"upper", p.MaxillaryConfig}}
	case ArchLower:
		return []archSide{{"lower", p.MandibularConfig}}
	}
	return []archSide{{"upper", p.MaxillaryConfig}, {"lower", p.MandibularConfig}}
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("sheet: cell: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("sheet: row %d: %w", row, err)
	}
	return nil
}
