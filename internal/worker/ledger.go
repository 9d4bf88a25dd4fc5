package worker

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"mietwagen/internal/calendar"
	"mietwagen/internal/models"

	"github.com/xuri/excelize/v2"
)

const ledgerSheet = "Rentals"

var ledgerHeader = []interface{}{
	"Rental ID", "Vehicle", "Plate", "Customer ID",
	"Start", "End", "Days", "Insurance", "Total", "Status",
}

// ExcelLedger maintains the rental ledger as a local xlsx file. Every
// write opens, modifies and saves the file; the mutex keeps writers
// from clobbering each other.
type ExcelLedger struct {
	path string
	mu   sync.Mutex
}

func NewExcelLedger(path string) *ExcelLedger {
	return &ExcelLedger{path: path}
}

func (l *ExcelLedger) open() (*excelize.File, error) {
	if _, err := os.Stat(l.path); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
			return nil, fmt.Errorf("create ledger directory: %w", err)
		}

		f := excelize.NewFile()
		index, err := f.NewSheet(ledgerSheet)
		if err != nil {
			return nil, fmt.Errorf("create ledger sheet: %w", err)
		}
		f.SetActiveSheet(index)
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("drop default sheet: %w", err)
		}
		if err := f.SetSheetRow(ledgerSheet, "A1", &ledgerHeader); err != nil {
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
		if err := f.SaveAs(l.path); err != nil {
			return nil, fmt.Errorf("save new ledger: %w", err)
		}
		return f, nil
	}

	f, err := excelize.OpenFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return f, nil
}

func (l *ExcelLedger) AppendRental(rental *models.Rental, vehicle *models.Vehicle) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(ledgerSheet)
	if err != nil {
		return fmt.Errorf("read ledger rows: %w", err)
	}

	// Re-delivered tasks must not duplicate rows
	for _, row := range rows[1:] {
		if len(row) > 0 && row[0] == strconv.FormatInt(rental.ID, 10) {
			return nil
		}
	}

	days := 0
	if r, err := rental.Range(); err == nil {
		days = r.Days()
	}

	cell := fmt.Sprintf("A%d", len(rows)+1)
	record := []interface{}{
		rental.ID,
		fmt.Sprintf("%s %s", vehicle.Make, vehicle.Model),
		vehicle.Plate,
		rental.CustomerID,
		rental.StartDate.Format(calendar.DayFormat),
		rental.EndDate.Format(calendar.DayFormat),
		days,
		string(rental.Insurance),
		rental.TotalPrice,
		rental.Status,
	}
	if err := f.SetSheetRow(ledgerSheet, cell, &record); err != nil {
		return fmt.Errorf("append ledger row: %w", err)
	}

	if err := f.Save(); err != nil {
		return fmt.Errorf("save ledger: %w", err)
	}
	return nil
}

func (l *ExcelLedger) UpdateRentalStatus(rentalID int64, status string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := l.open()
	if err != nil {
		return err
	}
	defer f.Close()

	rows, err := f.GetRows(ledgerSheet)
	if err != nil {
		return fmt.Errorf("read ledger rows: %w", err)
	}

	id := strconv.FormatInt(rentalID, 10)
	for i, row := range rows {
		if i == 0 || len(row) == 0 || row[0] != id {
			continue
		}
		cell := fmt.Sprintf("J%d", i+1)
		if err := f.SetCellValue(ledgerSheet, cell, status); err != nil {
			return fmt.Errorf("update ledger status: %w", err)
		}
		if err := f.Save(); err != nil {
			return fmt.Errorf("save ledger: %w", err)
		}
		return nil
	}

	// Row missing means the append task never landed; nothing to update
	return nil
}
