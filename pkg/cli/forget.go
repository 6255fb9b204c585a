package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/forget"
	"github.com/palace-sh/palace/pkg/store"
)

func init() {
	forgetCmd := &cobra.Command{
		Use:   "forget",
		Short: "Soft-delete memories matching criteria",
		Long:  "Move matching memories into the deletion queue. They stay recoverable for 30 days.",
		Run:   runForget,
	}
	forgetCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	forgetCmd.Flags().StringSlice("ids", nil, "Memory ids")
	forgetCmd.Flags().StringSlice("types", nil, "Memory types")
	forgetCmd.Flags().StringSlice("tags", nil, "Tags")
	forgetCmd.Flags().String("before", "", "Created before (RFC 3339)")
	forgetCmd.Flags().String("reason", "", "Deletion reason")
	_ = forgetCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(forgetCmd)

	recoverCmd := &cobra.Command{
		Use:   "recover [deletion-id]",
		Short: "Recover a soft deletion",
		Args:  cobra.ExactArgs(1),
		Run:   runRecover,
	}
	recoverCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	_ = recoverCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(recoverCmd)

	statusCmd := &cobra.Command{
		Use:   "forget-status [deletion-id]",
		Short: "Show the recoverable entries of a soft deletion",
		Args:  cobra.ExactArgs(1),
		Run:   runForgetStatus,
	}
	statusCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	_ = statusCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(statusCmd)

	deleteCmd := &cobra.Command{
		Use:   "delete",
		Short: "Permanently delete memories matching criteria",
		Long:  "Remove matching memories immediately, skipping the deletion queue. Irreversible.",
		Run:   runDelete,
	}
	deleteCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	deleteCmd.Flags().StringSlice("ids", nil, "Memory ids")
	deleteCmd.Flags().StringSlice("types", nil, "Memory types")
	deleteCmd.Flags().StringSlice("tags", nil, "Tags")
	deleteCmd.Flags().String("before", "", "Created before (RFC 3339)")
	deleteCmd.Flags().Bool("confirm", false, "Confirm the irreversible delete")
	_ = deleteCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(deleteCmd)

	purgeCmd := &cobra.Command{
		Use:   "purge",
		Short: "Permanently remove deletions past their retention window",
		Run:   runPurge,
	}
	RootCmd.AddCommand(purgeCmd)

	eraseCmd := &cobra.Command{
		Use:   "erase",
		Short: "Erase every trace of a tenant",
		Long:  "Remove the tenant's memories, archive, queue, logs, and profile. Irreversible; only the audit record remains.",
		Run:   runErase,
	}
	eraseCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	eraseCmd.Flags().String("reason", "", "Erasure reason")
	eraseCmd.Flags().Bool("confirm", false, "Confirm the irreversible erasure")
	_ = eraseCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(eraseCmd)
}

func runForget(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	ids, _ := cmd.Flags().GetStringSlice("ids")
	typeNames, _ := cmd.Flags().GetStringSlice("types")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	before, _ := cmd.Flags().GetString("before")
	reason, _ := cmd.Flags().GetString("reason")

	criteria := forget.Criteria{IDs: ids, Tags: tags}
	for _, name := range typeNames {
		criteria.Types = append(criteria.Types, store.MemoryType(name))
	}
	if before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			exitErr("parse --before", err)
		}
		criteria.CreatedBefore = &t
	}

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	receipt, err := p.Forget(cmd.Context(), tenant, criteria, reason)
	if err != nil {
		exitErr("forget", err)
	}

	printJSON(receipt)
}

func runForgetStatus(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	entries, err := p.DeletionStatus(cmd.Context(), tenant, args[0])
	if err != nil {
		exitErr("forget-status", err)
	}
	if len(entries) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(entries)
}

func runDelete(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	ids, _ := cmd.Flags().GetStringSlice("ids")
	typeNames, _ := cmd.Flags().GetStringSlice("types")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	before, _ := cmd.Flags().GetString("before")
	confirm, _ := cmd.Flags().GetBool("confirm")

	criteria := forget.Criteria{IDs: ids, Tags: tags}
	for _, name := range typeNames {
		criteria.Types = append(criteria.Types, store.MemoryType(name))
	}
	if before != "" {
		t, err := time.Parse(time.RFC3339, before)
		if err != nil {
			exitErr("parse --before", err)
		}
		criteria.CreatedBefore = &t
	}

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	deleted, err := p.PermanentDelete(cmd.Context(), tenant, criteria, confirm)
	if err != nil {
		exitErr("delete", err)
	}

	printJSON(map[string]interface{}{"deleted": deleted})
}

func runRecover(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	restored, err := p.Recover(cmd.Context(), tenant, args[0])
	if err != nil {
		exitErr("recover", err)
	}

	printJSON(map[string]interface{}{"deletion_id": args[0], "restored": restored})
}

func runPurge(cmd *cobra.Command, args []string) {
	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	purged, err := p.PurgeExpired(cmd.Context())
	if err != nil {
		exitErr("purge", err)
	}

	printJSON(map[string]interface{}{"purged": purged})
}

func runErase(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	reason, _ := cmd.Flags().GetString("reason")
	confirm, _ := cmd.Flags().GetBool("confirm")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	report, err := p.Erase(cmd.Context(), tenant, reason, confirm)
	if err != nil {
		exitErr("erase", err)
	}

	printJSON(report)
}
