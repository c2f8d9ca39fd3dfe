package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aalmada/BookStore-sub003/internal/azure"
	"github.com/aalmada/BookStore-sub003/internal/queue"
)

var rebuildable = map[string]bool{
	"all": true, "books": true, "booksearch": true, "bookstats": true,
	"authors": true, "publishers": true, "categories": true, "users": true,
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <projection>",
	Short: "Schedule a projection rebuild for one tenant",
	Long: `Schedules a rebuild by posting to the projector control queue. The
projection is replayed from the start of the tenant's feed; "all" rebuilds
every projection in dependency order.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		name := args[0]
		if !rebuildable[name] {
			fail("unknown projection %s", name)
			return fmt.Errorf("unknown projection %s", name)
		}
		qc, err := azure.NewQueue(cfg.Storage.ConnectionString, cfg.Storage.ControlQueue)
		if err != nil {
			return err
		}
		msg := queue.Message{Kind: queue.KindRebuild, Tenant: tenantID, Projection: name}
		if err := queue.New(qc).Enqueue(context.Background(), msg); err != nil {
			fail("schedule rebuild: %v", err)
			return err
		}
		success("rebuild of %s scheduled for tenant %s", name, tenantID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rebuildCmd)
}
