package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/config"
)

var (
	cfgFile  string
	tenantID string
	asJSON   bool
	cfg      *config.Config
)

var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	headerColor  = color.New(color.FgWhite, color.Bold)
)

var rootCmd = &cobra.Command{
	Use:   "bookstorectl",
	Short: "Operator CLI for the bookstore services",
	Long: `bookstorectl talks directly to the bookstore's storage accounts:
inspect read-model documents and the event feed, manage tenants and
trigger projection rebuilds, with or without a running API.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		if cfg.Storage.ConnectionString == "" {
			return fmt.Errorf("missing storage connection string")
		}
		if tenantID == "" {
			tenantID = cfg.Tenancy.DefaultTenant
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.yaml, BOOKSTORE_ env)")
	rootCmd.PersistentFlags().StringVar(&tenantID, "tenant", "", "tenant to operate on (default: configured default tenant)")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "print results as JSON")
}

func tableService() (*aztables.ServiceClient, error) {
	return azure.NewTableService(cfg.Storage.ConnectionString)
}

func success(format string, a ...any) {
	successColor.Printf("✓ "+format+"\n", a...)
}

func fail(format string, a ...any) {
	errorColor.Fprintf(os.Stderr, "✗ "+format+"\n", a...)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
