// Package export renders a study plan to an .xlsx workbook, one row per
// task, for learners who want their schedule outside the app.
package export

import (
	"fmt"
	"io"
	"sort"

	"github.com/xuri/excelize/v2"

	"github.com/p-n-ai/studyplan/internal/plan"
)

const sheetName = "Schedule"

var headers = []string{"Date", "Start", "End", "Topic", "Type", "Difficulty", "Minutes", "Status"}

// WritePlan writes the plan's tasks to w as an Excel workbook, ordered by
// start time.
func WritePlan(w io.Writer, p plan.StudyPlan, tasks []plan.Task) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("creating sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("dropping default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	if err != nil {
		return fmt.Errorf("creating header style: %w", err)
	}
	for col, h := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("locating header cell: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, h); err != nil {
			return fmt.Errorf("writing header %s: %w", h, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("styling header %s: %w", h, err)
		}
	}
	if err := f.SetColWidth(sheetName, "A", "C", 12); err != nil {
		return fmt.Errorf("sizing columns: %w", err)
	}
	if err := f.SetColWidth(sheetName, "D", "D", 28); err != nil {
		return fmt.Errorf("sizing topic column: %w", err)
	}

	ordered := make([]plan.Task, len(tasks))
	copy(ordered, tasks)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].StartTime.Before(ordered[j].StartTime)
	})

	for i, task := range ordered {
		row := i + 2
		values := []any{
			task.StartTime.Format("2006-01-02"),
			task.StartTime.Format("15:04"),
			task.EndTime.Format("15:04"),
			task.TopicID,
			string(task.Type),
			string(task.Difficulty),
			task.DurationMinutes,
			string(task.Status),
		}
		for col, v := range values {
			cell, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return fmt.Errorf("locating cell: %w", err)
			}
			if err := f.SetCellValue(sheetName, cell, v); err != nil {
				return fmt.Errorf("writing row %d: %w", row, err)
			}
		}
	}

	summary := fmt.Sprintf("Plan %s: %d tasks, exam on %s",
		p.ID, len(ordered), p.ExamDate.Format("2006-01-02"))
	summaryCell, err := excelize.CoordinatesToCellName(1, len(ordered)+3)
	if err != nil {
		return fmt.Errorf("locating summary cell: %w", err)
	}
	if err := f.SetCellValue(sheetName, summaryCell, summary); err != nil {
		return fmt.Errorf("writing summary: %w", err)
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("writing workbook: %w", err)
	}
	return nil
}
