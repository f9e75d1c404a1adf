package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

var processDraftCmd = &cobra.Command{
	Use:   "process-draft <id>",
	Short: "Enrich a pending draft in the foreground",
	Long: `Process-draft runs enrichment for one draft without the task queue and
prints the resulting draft as JSON.`,
	Args: cobra.ExactArgs(1),
	RunE: runProcessDraft,
}

func runProcessDraft(cmd *cobra.Command, args []string) error {
	draft, err := catalog.Drafts.ProcessDraft(cmd.Context(), args[0])
	if draft != nil {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if eerr := enc.Encode(draft); eerr != nil {
			return eerr
		}
	}
	if err != nil {
		return fmt.Errorf("process draft %s: %w", args[0], err)
	}
	return nil
}
