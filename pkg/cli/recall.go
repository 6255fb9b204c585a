package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "recall",
		Short: "Recall a tenant's most relevant memories",
		Long:  "List active memories ordered by importance, bumping their recall counters.",
		Run:   runRecall,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	cmd.Flags().String("type", "", "Filter by memory type")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance")
	cmd.Flags().IntP("limit", "l", 0, "Max results")
	_ = cmd.MarkFlagRequired("tenant")

	RootCmd.AddCommand(cmd)
}

func runRecall(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	memType, _ := cmd.Flags().GetString("type")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	limit, _ := cmd.Flags().GetInt("limit")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	filters := store.RecallFilters{MinImportance: minImportance, Limit: limit}
	if memType != "" {
		t := store.MemoryType(memType)
		filters.Type = &t
	}

	records, err := p.Recall(cmd.Context(), tenant, filters)
	if err != nil {
		exitErr("recall", err)
	}
	if len(records) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(records)
}
