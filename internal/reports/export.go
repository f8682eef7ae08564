// Package reports renders spreadsheet exports.
package reports

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/ukydev/fleet-backoffice/internal/models"
)

const (
	SheetTrips   = "Trips"
	SheetClients = "Clients"
	dateLayout   = "2006-01-02"
)

var (
	tripHeaders = []string{
		"Trip Number", "Scheduled", "Vehicle", "Ownership", "Owner", "Driver", "Status",
		"Client Amount", "Commission", "Owner Amount", "Owner Advances", "Owner Expenses", "Owner Balance",
	}
	clientHeaders = []string{
		"Trip Number", "Client", "Origin", "Destination", "Rate", "Expenses", "Argestment",
		"Total", "Paid", "Due", "POD",
	}
)

// TripsWorkbook builds a workbook with one row per trip and one row per
// trip client.
func TripsWorkbook(trips []models.Trip) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := writeSheet(f, SheetTrips, tripHeaders, len(trips), func(i int) []interface{} {
		t := trips[i]
		return []interface{}{
			t.TripNumber, formatDate(t.ScheduledDate), t.VehicleNumber, string(t.VehicleOwner.Type),
			t.VehicleOwner.Name, t.DriverName, string(t.Status),
			t.TotalClientAmount, t.TotalCommission, t.VehicleOwnerAmount,
			t.OwnerAdvanceTotal, t.OwnerExpenseTotal, t.OwnerBalance,
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to create trips sheet: %w", err)
	}

	type clientRow struct {
		trip   string
		client models.TripClient
	}
	var rows []clientRow
	for _, t := range trips {
		for _, c := range t.Clients {
			rows = append(rows, clientRow{trip: t.TripNumber, client: c})
		}
	}
	if err := writeSheet(f, SheetClients, clientHeaders, len(rows), func(i int) []interface{} {
		r := rows[i]
		c := r.client
		return []interface{}{
			r.trip, c.ClientName, c.Origin, c.Destination, c.Rate, c.TotalExpense, c.Argestment,
			c.TotalRate, c.PaidAmount, c.DueAmount, string(c.PODManage),
		}
	}); err != nil {
		return nil, fmt.Errorf("failed to create clients sheet: %w", err)
	}

	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, err
	}
	idx, err := f.GetSheetIndex(SheetTrips)
	if err != nil {
		return nil, err
	}
	f.SetActiveSheet(idx)
	return f, nil
}

func writeSheet(f *excelize.File, name string, headers []string, n int, row func(int) []interface{}) error {
	if _, err := f.NewSheet(name); err != nil {
		return err
	}
	if err := f.SetSheetRow(name, "A1", &headers); err != nil {
		return err
	}
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	last, err := excelize.CoordinatesToCellName(len(headers), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(name, "A1", last, style); err != nil {
		return err
	}

	for i := 0; i < n; i++ {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := row(i)
		if err := f.SetSheetRow(name, cell, &values); err != nil {
			return err
		}
	}
	return f.SetPanes(name, &excelize.Panes{Freeze: true, YSplit: 1, TopLeftCell: "A2", ActivePane: "bottomLeft"})
}

// Filename is the download name of an export generated at now.
func Filename(now time.Time) string {
	return fmt.Sprintf("trips_%s.xlsx", now.Format(dateLayout))
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(dateLayout)
}
