package cli

import (
	"github.com/spf13/cobra"
)

func init() {
	cmd := &cobra.Command{
		Use:   "consolidate",
		Short: "Run memory consolidation",
		Long:  "Merge, summarize, archive, and compress old memories for one tenant or all tenants.",
		Run:   runConsolidate,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant id (default: all tenants)")

	RootCmd.AddCommand(cmd)
}

func runConsolidate(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	if tenant != "" {
		result, err := p.Consolidate(cmd.Context(), tenant)
		if err != nil {
			exitErr("consolidate", err)
		}
		printJSON(result)
		return
	}

	result, err := p.ConsolidateAll(cmd.Context())
	if err != nil {
		exitErr("consolidate", err)
	}
	printJSON(result)
}
