package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var seedFrom string

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Import courses from a mirror document",
	Long: `Seed inserts the courses of a mirror document that are not in the
store yet. Existing courses are left untouched.

Example:
  catalogctl seed --from data/courses.json`,
	Args: cobra.NoArgs,
	RunE: runSeed,
}

func init() {
	seedCmd.Flags().StringVar(&seedFrom, "from", "", "mirror document to import (default: COURSES_PATH)")
}

func runSeed(cmd *cobra.Command, args []string) error {
	path := seedFrom
	if path == "" {
		path = catalog.Config.Export.CoursesPath
	}

	inserted, err := catalog.Export.Import(cmd.Context(), path)
	if err != nil {
		return fmt.Errorf("seed from %s: %w", path, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Inserted %d courses from %s\n", inserted, path)
	return nil
}
