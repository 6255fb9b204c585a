package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show a tenant's memory counts and health",
		Run:   runStats,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	_ = cmd.MarkFlagRequired("tenant")

	RootCmd.AddCommand(cmd)
}

func runStats(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	summary, err := p.Summary(cmd.Context(), tenant)
	if err != nil {
		exitErr("stats", err)
	}

	printJSON(summary)
}
