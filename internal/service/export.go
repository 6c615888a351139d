package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"time"

	"example.com/backstage/services/fleet/internal/apperrors"
	"example.com/backstage/services/fleet/internal/models"

	"github.com/xuri/excelize/v2"
)

// Export formats
const (
	ExportCSV  = "csv"
	ExportXLSX = "xlsx"
)

var exportHeaders = []string{"id", "device_id", "sensor_type", "value", "unit", "timestamp"}

// Export is a rendered readings file
type Export struct {
	Filename    string
	ContentType string
	Data        []byte
}

// ExportReadings renders the readings selected by the query parameters as CSV or XLSX
func (s *service) ExportReadings(ctx context.Context, deviceID, sensorType, timeframe string, limit int, format string) (*Export, error) {
	if format == "" {
		format = ExportCSV
	}
	if format != ExportCSV && format != ExportXLSX {
		return nil, apperrors.InvalidArgument("unknown export format %q", format)
	}

	page, err := s.QueryReadings(ctx, deviceID, sensorType, timeframe, limit)
	if err != nil {
		return nil, err
	}

	filename := fmt.Sprintf("readings_%s_%s.%s", deviceID, s.now().Format("20060102_150405"), format)

	switch format {
	case ExportXLSX:
		data, err := readingsXLSX(page.Readings)
		if err != nil {
			return nil, apperrors.Unavailable(err, "failed to render export")
		}
		return &Export{
			Filename:    filename,
			ContentType: "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
			Data:        data,
		}, nil
	default:
		data, err := readingsCSV(page.Readings)
		if err != nil {
			return nil, apperrors.Unavailable(err, "failed to render export")
		}
		return &Export{
			Filename:    filename,
			ContentType: "text/csv",
			Data:        data,
		}, nil
	}
}

func readingRow(r models.SensorReading) []string {
	return []string{
		r.ID,
		r.DeviceID,
		string(r.SensorType),
		strconv.FormatFloat(r.Value, 'f', -1, 64),
		r.Unit,
		r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func readingsCSV(readings []models.SensorReading) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write(exportHeaders); err != nil {
		return nil, err
	}
	for _, r := range readings {
		if err := w.Write(readingRow(r)); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func readingsXLSX(readings []models.SensorReading) ([]byte, error) {
	const sheetName = "Readings"

	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return nil, err
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return nil, err
		}
	}

	for i, r := range readings {
		row := i + 2
		values := []interface{}{r.ID, r.DeviceID, string(r.SensorType), r.Value, r.Unit, r.Timestamp.UTC().Format(time.RFC3339)}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return nil, err
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return nil, err
			}
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}

	return buf.Bytes(), nil
}
