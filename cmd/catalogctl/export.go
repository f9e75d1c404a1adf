package main

import (
	"fmt"
	"time"

	"coursecatalog/internal/service"
	"coursecatalog/internal/utils"

	"github.com/spf13/cobra"
)

var exportXLSX string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Regenerate the course mirror",
	Long: `Export rewrites the JSON mirror from the full course store and, when
configured, publishes it.

Example:
  catalogctl export
  catalogctl export --xlsx courses.xlsx`,
	Args: cobra.NoArgs,
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportXLSX, "xlsx", "", "also write an xlsx workbook to this path")
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	path, err := catalog.Export.Export(ctx)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported mirror to %s\n", path)

	if exportXLSX == "" {
		return nil
	}

	courses, err := catalog.Courses.ListCourses(ctx)
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	service.SortForMirror(courses)
	if err := utils.CreateCoursesFile(exportXLSX, courses, time.Now().UTC()); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d courses to %s\n", len(courses), exportXLSX)
	return nil
}
