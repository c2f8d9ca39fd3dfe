package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/aalmada/BookStore-sub003/internal/tenant"
)

var tenantName string

var tenantCmd = &cobra.Command{
	Use:   "tenant",
	Short: "Manage tenants",
}

var tenantListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered tenants",
	RunE: func(cmd *cobra.Command, args []string) error {
		registry, err := tenantRegistry()
		if err != nil {
			return err
		}
		infos, err := registry.List(context.Background())
		if err != nil {
			return fmt.Errorf("list tenants: %w", err)
		}
		if asJSON {
			return printJSON(infos)
		}
		headerColor.Printf("%-24s %-32s %s\n", "ID", "NAME", "CREATED")
		for _, info := range infos {
			created := ""
			if info.CreatedAt != 0 {
				created = time.UnixMilli(info.CreatedAt).UTC().Format(time.RFC3339)
			}
			fmt.Printf("%-24s %-32s %s\n", info.ID, info.Name, created)
		}
		return nil
	},
}

var tenantCreateCmd = &cobra.Command{
	Use:   "create <id>",
	Short: "Register a tenant",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id := args[0]
		name := tenantName
		if name == "" {
			name = id
		}
		registry, err := tenantRegistry()
		if err != nil {
			return err
		}
		info := tenant.Info{ID: id, Name: name, CreatedAt: time.Now().UnixMilli()}
		if err := registry.Create(context.Background(), info); err != nil {
			fail("create tenant %s: %v", id, err)
			return err
		}
		success("tenant %s registered", id)
		return nil
	},
}

func tenantRegistry() (tenant.Registry, error) {
	tables, err := tableService()
	if err != nil {
		return nil, err
	}
	return tenant.NewTableRegistry(tables.NewClient(cfg.Storage.TenantsTable)), nil
}

func init() {
	tenantCreateCmd.Flags().StringVar(&tenantName, "name", "", "display name (default: the id)")
	tenantCmd.AddCommand(tenantListCmd, tenantCreateCmd)
	rootCmd.AddCommand(tenantCmd)
}
