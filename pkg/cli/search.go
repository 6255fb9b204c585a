package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/search"
	"github.com/palace-sh/palace/pkg/store"
)

func init() {
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Search a tenant's memories by relevance",
		Long:  "Score memories against the query across content, tags, titles, and summaries.",
		Args:  cobra.MinimumNArgs(1),
		Run:   runSearch,
	}

	cmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	cmd.Flags().StringSlice("types", nil, "Filter by memory types")
	cmd.Flags().StringSlice("tags", nil, "Filter by tags")
	cmd.Flags().Float64("min-importance", 0, "Minimum importance")
	cmd.Flags().Bool("archive", false, "Include archived memories")
	cmd.Flags().String("sort", "relevance", "Sort order: relevance, date, or importance")
	cmd.Flags().IntP("limit", "l", 20, "Max results")
	cmd.Flags().Bool("highlight", false, "Include match highlights")
	_ = cmd.MarkFlagRequired("tenant")

	RootCmd.AddCommand(cmd)

	suggest := &cobra.Command{
		Use:   "suggest [prefix]",
		Short: "Autocomplete a search prefix",
		Args:  cobra.ExactArgs(1),
		Run:   runSuggest,
	}
	suggest.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	suggest.Flags().IntP("limit", "l", 10, "Max suggestions")
	_ = suggest.MarkFlagRequired("tenant")

	RootCmd.AddCommand(suggest)
}

func runSearch(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	typeNames, _ := cmd.Flags().GetStringSlice("types")
	tags, _ := cmd.Flags().GetStringSlice("tags")
	minImportance, _ := cmd.Flags().GetFloat64("min-importance")
	archive, _ := cmd.Flags().GetBool("archive")
	sortBy, _ := cmd.Flags().GetString("sort")
	limit, _ := cmd.Flags().GetInt("limit")
	highlight, _ := cmd.Flags().GetBool("highlight")
	query := strings.Join(args, " ")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	opts := search.Options{
		Tags:           tags,
		MinImportance:  minImportance,
		IncludeArchive: archive,
		SortBy:         search.SortOrder(sortBy),
		Limit:          limit,
		Highlight:      highlight,
	}
	for _, name := range typeNames {
		opts.Types = append(opts.Types, store.MemoryType(name))
	}

	results, err := p.Search(cmd.Context(), tenant, query, opts)
	if err != nil {
		exitErr("search", err)
	}
	if len(results) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(results)
}

func runSuggest(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	limit, _ := cmd.Flags().GetInt("limit")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	suggestions, err := p.Suggest(cmd.Context(), tenant, args[0], limit)
	if err != nil {
		exitErr("suggest", err)
	}
	if len(suggestions) == 0 {
		fmt.Println("[]")
		return
	}

	printJSON(suggestions)
}
