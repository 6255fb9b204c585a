package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/export"
)

func init() {
	exportCmd := &cobra.Command{
		Use:   "export",
		Short: "Export a tenant's memories as a checksummed package",
		Run:   runExport,
	}
	exportCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	exportCmd.Flags().String("format", "full", "Package format: full or portable")
	exportCmd.Flags().Bool("archive", false, "Include archived memories")
	exportCmd.Flags().StringP("out", "o", "", "Output file (default: stdout)")
	_ = exportCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(exportCmd)

	importCmd := &cobra.Command{
		Use:   "import [package-file]",
		Short: "Import a memory package into a tenant",
		Long:  "Verify a package's checksum and load its memories using the chosen duplicate strategy.",
		Args:  cobra.ExactArgs(1),
		Run:   runImport,
	}
	importCmd.Flags().StringP("tenant", "t", "", "Tenant id (required)")
	importCmd.Flags().String("strategy", "skip_duplicates", "Duplicate strategy: skip_duplicates, overwrite, or merge")
	importCmd.Flags().Bool("validate-only", false, "Verify the package without writing anything")
	_ = importCmd.MarkFlagRequired("tenant")
	RootCmd.AddCommand(importCmd)
}

func runExport(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	format, _ := cmd.Flags().GetString("format")
	archive, _ := cmd.Flags().GetBool("archive")
	out, _ := cmd.Flags().GetString("out")

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	pkg, err := p.Export(cmd.Context(), tenant, export.Options{
		Format:         export.Format(format),
		IncludeArchive: archive,
	})
	if err != nil {
		exitErr("export", err)
	}

	if out == "" {
		printJSON(pkg)
		return
	}

	b, _ := json.MarshalIndent(pkg, "", "  ")
	if err := os.WriteFile(out, b, 0o644); err != nil {
		exitErr("write package", err)
	}
	fmt.Printf("wrote package %s (%d memories) to %s\n",
		pkg.PackageID, len(pkg.Memories.Active)+len(pkg.Memories.Archived), out)
}

func runImport(cmd *cobra.Command, args []string) {
	tenant, _ := cmd.Flags().GetString("tenant")
	strategy, _ := cmd.Flags().GetString("strategy")
	validateOnly, _ := cmd.Flags().GetBool("validate-only")

	b, err := os.ReadFile(args[0])
	if err != nil {
		exitErr("read package", err)
	}
	var pkg export.Package
	if err := json.Unmarshal(b, &pkg); err != nil {
		exitErr("parse package", err)
	}

	p, err := openPalace()
	if err != nil {
		exitErr("open palace", err)
	}
	defer p.Close()

	report, err := p.Import(cmd.Context(), tenant, &pkg, export.ImportOptions{
		Strategy:     export.Strategy(strategy),
		ValidateOnly: validateOnly,
	})
	if err != nil {
		exitErr("import", err)
	}

	printJSON(report)
}
