// Package cli implements the palace CLI commands.
package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/palace-sh/palace/pkg/palace"
)

var dbPath string

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "palace",
	Short: "Tenant-scoped memory store with consolidation, search, and export",
	Long:  "A memory subsystem CLI. Stores typed memories per tenant, consolidates old ones, searches by relevance, exports checksummed packages, and honors deletion requests.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $PALACE_DB or ~/.palace/palace.db)")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	if env := os.Getenv("PALACE_DB"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".palace", "palace.db")
}

func openPalace() (*palace.Palace, error) {
	return palace.New(palace.Config{DBPath: getDBPath()})
}

func printJSON(v interface{}) {
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
