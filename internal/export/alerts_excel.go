package export

import (
	"bytes"
	"fmt"
	"time"

	"lifesignal/internal/models"

	"github.com/xuri/excelize/v2"
)

const alertSheet = "Alerts"

// AlertExportHeader 报警记录导出表头
var AlertExportHeader = []string{
	"Dispatched At",
	"Episode ID",
	"Kind",
	"Value",
	"Channel",
	"Contact",
	"Phone Number",
	"Message",
}

var alertColumnWidths = []float64{
	22, // Dispatched At
	38, // Episode ID
	14, // Kind
	10, // Value
	14, // Channel
	20, // Contact
	18, // Phone Number
	60, // Message
}

// GenerateAlertExport 生成报警记录 Excel 文件
// records 为空时只生成表头
func GenerateAlertExport(records []models.AlertRecord) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(alertSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#FDE2E2"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 表头
	for col, header := range AlertExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(alertSheet, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(alertSheet, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(alertSheet, name, name, alertColumnWidths[col]); err != nil {
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}

	// 数据从第2行开始
	for i, r := range records {
		row := alertRow(r)
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(alertSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write excel: %w", err)
	}
	return buf.Bytes(), nil
}

func alertRow(r models.AlertRecord) []any {
	var value any
	if r.TriggeringEvent.Value != nil {
		value = *r.TriggeringEvent.Value
	}
	return []any{
		r.DispatchedAt.UTC().Format(time.RFC3339),
		r.EpisodeID,
		string(r.TriggeringEvent.Kind),
		value,
		string(r.Channel),
		r.ContactName,
		r.PhoneNumber,
		r.Message,
	}
}
