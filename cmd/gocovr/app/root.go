package app

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewGocovrCommand creates the root command for the gocovr tool.
func NewGocovrCommand() *cobra.Command {
	// Load .env file if it exists (silently ignore if not present)
	_ = godotenv.Load()

	cmd := &cobra.Command{
		Use:   "gocovr",
		Short: "Collect and merge gcov code coverage.",
		Long: `Gocovr runs gcov over the data files a test run left behind, parses
the reports and aggregates everything into one coverage model.`,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewMergeCommand())

	return cmd
}
