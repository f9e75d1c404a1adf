package utils

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"coursecatalog/internal/models"
)

const (
	coursesSheet = "Courses"
	infoSheet    = "Info"
)

// CourseHeaders are the column titles shared by the JSON mirror and the
// workbook.
var CourseHeaders = []string{
	"ID", "Link", "Version", "Provider", "Course Name", "Summary", "Track", "Platform",
	"Hands On", "Skill Level", "Difficulty", "Length", "Evidence of Completion",
	"Date Created", "Last Updated",
}

// CreateCoursesFile writes the courses workbook to path.
func CreateCoursesFile(path string, courses []models.Course, generatedAt time.Time) error {
	f, err := buildCoursesWorkbook(courses, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.SaveAs(path)
}

// WriteCoursesWorkbook streams the courses workbook to w.
func WriteCoursesWorkbook(w io.Writer, courses []models.Course, generatedAt time.Time) error {
	f, err := buildCoursesWorkbook(courses, generatedAt)
	if err != nil {
		return err
	}
	defer f.Close()

	return f.Write(w)
}

func buildCoursesWorkbook(courses []models.Course, generatedAt time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	if _, err := f.NewSheet(coursesSheet); err != nil {
		f.Close()
		return nil, err
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		f.Close()
		return nil, err
	}

	for i, header := range CourseHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		f.SetCellValue(coursesSheet, cell, header)
	}
	lastCol, _ := excelize.ColumnNumberToName(len(CourseHeaders))
	f.SetCellStyle(coursesSheet, "A1", lastCol+"1", headerStyle)

	for rowIdx, c := range courses {
		row := []interface{}{
			c.ID, c.Link, c.Version, c.Provider, c.CourseName, c.Summary, c.Track, c.Platform,
			c.HandsOn, c.SkillLevel, c.Difficulty, c.Length, c.EvidenceOfCompletion,
			c.DateCreated.UTC().Format(time.RFC3339), c.LastUpdated.UTC().Format(time.RFC3339),
		}
		cell, _ := excelize.CoordinatesToCellName(1, rowIdx+2)
		if err := f.SetSheetRow(coursesSheet, cell, &row); err != nil {
			f.Close()
			return nil, err
		}
	}

	for i := 1; i <= len(CourseHeaders); i++ {
		colName, _ := excelize.ColumnNumberToName(i)
		f.SetColWidth(coursesSheet, colName, colName, 20)
	}
	f.SetColWidth(coursesSheet, "F", "F", 60)

	if err := f.AutoFilter(coursesSheet, fmt.Sprintf("A1:%s%d", lastCol, len(courses)+1), nil); err != nil {
		f.Close()
		return nil, err
	}
	f.SetPanes(coursesSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	})

	createInfoSheet(f, courses, generatedAt)
	if index, err := f.GetSheetIndex(coursesSheet); err == nil {
		f.SetActiveSheet(index)
	}

	return f, nil
}

func createInfoSheet(f *excelize.File, courses []models.Course, generatedAt time.Time) {
	f.NewSheet(infoSheet)

	f.SetCellValue(infoSheet, "A1", "Report Generated")
	f.SetCellValue(infoSheet, "B1", generatedAt.UTC().Format("2006-01-02 15:04:05"))
	f.SetCellValue(infoSheet, "A2", "Total Courses")
	f.SetCellValue(infoSheet, "B2", len(courses))

	f.SetCellValue(infoSheet, "A4", "Provider")
	f.SetCellValue(infoSheet, "B4", "Courses")

	perProvider := countByProvider(courses)
	providers := make([]string, 0, len(perProvider))
	for p := range perProvider {
		providers = append(providers, p)
	}
	sort.Strings(providers)

	for i, p := range providers {
		row := i + 5
		f.SetCellValue(infoSheet, fmt.Sprintf("A%d", row), p)
		f.SetCellValue(infoSheet, fmt.Sprintf("B%d", row), perProvider[p])
	}
	f.SetColWidth(infoSheet, "A", "A", 30)
}

func countByProvider(courses []models.Course) map[string]int {
	counts := make(map[string]int)
	for _, c := range courses {
		name := c.Provider
		if name == "" {
			name = "(none)"
		}
		counts[name]++
	}
	return counts
}
