package cli

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "remember [content-json]",
		Short: "Store a memory for a tenant",
		Long:  "Store one memory. Content is a JSON object; type and tenant are flags.",
		Args:  cobra.ExactArgs(1),
		Run:   runRemember,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	cmd.Flags().String("type", "interaction", "Memory type")
	cmd.Flags().Float64P("importance", "i", 0.5, "Importance in [0,1]")
	cmd.Flags().StringSlice("tags", nil, "Tags")
	_ = cmd.MarkFlagRequired("tenant")

	RootCmd.AddCommand(cmd)
}

func runRemember(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	memType, _ := cmd.Flags().GetString("type")
	importance, _ := cmd.Flags().GetFloat64("importance")
	tags, _ := cmd.Flags().GetStringSlice("tags")

	var content store.Content
	if err := json.Unmarshal([]byte(args[0]), &content); err != nil {
		exitErr("parse content", err)
	}

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	record := &store.MemoryRecord{
		TenantID:   tenant,
		Type:       store.MemoryType(memType),
		Content:    content,
		Importance: importance,
		Tags:       tags,
	}
	if err := p.Remember(cmd.Context(), record); err != nil {
		exitErr("remember", err)
	}

	printJSON(record)
}
