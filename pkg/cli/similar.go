package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/store"
)

func init() {
	similar := &cobra.Command{
		Use:   "similar",
		Short: "List a tenant's similar peers",
		Run:   runSimilar,
	}
	similar.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	_ = similar.MarkFlagRequired("tenant")
	RootCmd.AddCommand(similar)

	insights := &cobra.Command{
		Use:   "insights",
		Short: "Derive cross-tenant insights for a tenant",
		Long:  "Derive anonymized insights from the tenant's peer group, best first.",
		Run:   runInsights,
	}
	insights.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	insights.Flags().IntP("limit", "l", 10, "Max insights")
	_ = insights.MarkFlagRequired("tenant")
	RootCmd.AddCommand(insights)

	profile := &cobra.Command{
		Use:   "profile",
		Short: "Create or update a tenant's similarity profile",
		Run:   runProfile,
	}
	profile.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	profile.Flags().StringSlice("platforms", nil, "Platforms the tenant is active on")
	profile.Flags().String("niche", "", "Content niche")
	profile.Flags().Int("approvals", 0, "Approved submissions")
	profile.Flags().Int("submissions", 0, "Total submissions")
	profile.Flags().Float64("velocity", 0, "Submissions per week")
	_ = profile.MarkFlagRequired("tenant")
	RootCmd.AddCommand(profile)
}

func runSimilar(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	peers, err := p.SimilarTenants(cmd.Context(), tenant)
	if err != nil {
		exitErr("similar", err)
	}
	if len(peers) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(peers)
}

func runInsights(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	limit, _ := cmd.Flags().GetInt("limit")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	insights, err := p.Insights(cmd.Context(), tenant, limit)
	if err != nil {
		exitErr("insights", err)
	}
	if len(insights) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(insights)
}

func runProfile(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	platforms, _ := cmd.Flags().GetStringSlice("platforms")
	niche, _ := cmd.Flags().GetString("niche")
	approvals, _ := cmd.Flags().GetInt("approvals")
	submissions, _ := cmd.Flags().GetInt("submissions")
	velocity, _ := cmd.Flags().GetFloat64("velocity")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	profile := &store.TenantProfile{
		TenantID:    tenant,
		Platforms:   platforms,
		Niche:       niche,
		Approvals:   approvals,
		Submissions: submissions,
		Velocity:    velocity,
	}
	if err := p.UpsertProfile(cmd.Context(), profile); err != nil {
		exitErr("profile", err)
	}

	printJSON(profile)
}
