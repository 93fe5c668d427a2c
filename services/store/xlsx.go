package store

import (
	"os"

	"github.com/tealeg/xlsx/v2"

	"kzfm923/madealworker/internal/pipeline"
	"kzfm923/madealworker/logger"
	"kzfm923/madealworker/pkg/errors"
)

const defaultSheetName = "deals"

// XLSXStore persists rows into a spreadsheet file on disk. A missing
// file is created with a header row on the first append.
type XLSXStore struct {
	path  string
	sheet string
	log   *logger.Logger
}

// NewXLSXStore creates a spreadsheet store at path
func NewXLSXStore(path string) *XLSXStore {
	return &XLSXStore{
		path:  path,
		sheet: defaultSheetName,
		log:   logger.ForStore(),
	}
}

// ExistingIDs reads the uniqueId column of the sheet. A file that does
// not exist yet yields an empty set, not an error.
func (s *XLSXStore) ExistingIDs() (map[string]struct{}, error) {
	ids := make(map[string]struct{})

	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		return ids, nil
	}

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, errors.NewPersist("failed to open workbook "+s.path, err)
	}

	sheet, err := s.getSheet(f)
	if err != nil {
		return nil, err
	}

	for i, row := range sheet.Rows {
		if i == 0 || len(row.Cells) == 0 {
			continue
		}
		id := row.Cells[0].String()
		if id != "" {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

// Append adds one row per record and saves the workbook
func (s *XLSXStore) Append(records []pipeline.FormattedRecord) error {
	if len(records) == 0 {
		return nil
	}

	f, sheet, err := s.openOrCreate()
	if err != nil {
		return err
	}

	for _, rec := range records {
		row := sheet.AddRow()
		for _, value := range recordCells(rec) {
			cell := row.AddCell()
			cell.Value = value
		}
	}

	if err := f.Save(s.path); err != nil {
		return errors.NewPersist("failed to save workbook "+s.path, err)
	}

	s.log.Info().
		Int("rows", len(records)).
		Str("path", s.path).
		Msg("Appended rows to workbook")
	return nil
}

// Close is a no-op; the workbook is saved on every append
func (s *XLSXStore) Close() error {
	return nil
}

func (s *XLSXStore) openOrCreate() (*xlsx.File, *xlsx.Sheet, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f := xlsx.NewFile()
		sheet, err := f.AddSheet(s.sheet)
		if err != nil {
			return nil, nil, errors.NewPersist("failed to create sheet", err)
		}

		headerRow := sheet.AddRow()
		for _, name := range header {
			cell := headerRow.AddCell()
			cell.Value = name
		}
		return f, sheet, nil
	}

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, nil, errors.NewPersist("failed to open workbook "+s.path, err)
	}
	sheet, err := s.getSheet(f)
	if err != nil {
		return nil, nil, err
	}
	return f, sheet, nil
}

func (s *XLSXStore) getSheet(f *xlsx.File) (*xlsx.Sheet, error) {
	if sheet, ok := f.Sheet[s.sheet]; ok {
		return sheet, nil
	}
	if len(f.Sheets) > 0 {
		return f.Sheets[0], nil
	}
	return nil, errors.NewPersist("workbook has no sheets: "+s.path, nil)
}
