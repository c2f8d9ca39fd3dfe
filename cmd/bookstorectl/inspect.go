package main

import (
	"context"
	"fmt"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/data/aztables"
	"github.com/spf13/cobra"

	"github.com/aalmada/BookStore-sub003/internal/eventlog"
	"github.com/aalmada/BookStore-sub003/internal/readmodel"
)

var (
	feedAfter int64
	feedLimit int
)

var docCmd = &cobra.Command{
	Use:   "doc <projection> <id>",
	Short: "Print one read-model document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := tableService()
		if err != nil {
			return err
		}
		ctx := context.Background()
		projection, id := args[0], args[1]
		switch projection {
		case "books":
			return printStoredDoc[readmodel.BookDoc](ctx, tables, projection, id)
		case "booksearch":
			return printStoredDoc[readmodel.BookSearchDoc](ctx, tables, projection, id)
		case "bookstats":
			return printStoredDoc[readmodel.BookStatsDoc](ctx, tables, projection, id)
		case "authors":
			return printStoredDoc[readmodel.AuthorDoc](ctx, tables, projection, id)
		case "publishers":
			return printStoredDoc[readmodel.PublisherDoc](ctx, tables, projection, id)
		case "categories":
			return printStoredDoc[readmodel.CategoryDoc](ctx, tables, projection, id)
		case "users":
			return printStoredDoc[readmodel.UserDoc](ctx, tables, projection, id)
		default:
			fail("unknown projection %s", projection)
			return fmt.Errorf("unknown projection %s", projection)
		}
	},
}

func printStoredDoc[D readmodel.Doc](ctx context.Context, tables *aztables.ServiceClient, projection, id string) error {
	store := readmodel.NewTableStore[D](tables.NewClient(cfg.Storage.DocTable(projection)))
	doc, err := store.Get(ctx, tenantID, id)
	if err != nil {
		fail("get %s/%s: %v", projection, id, err)
		return err
	}
	return printJSON(doc)
}

var feedCmd = &cobra.Command{
	Use:   "feed",
	Short: "Print events from a tenant's feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		tables, err := tableService()
		if err != nil {
			return err
		}
		log := eventlog.NewTableLog(tables.NewClient(cfg.Storage.EventsTable))
		events, err := log.ReadFeed(context.Background(), tenantID, feedAfter, feedLimit)
		if err != nil {
			fail("read feed: %v", err)
			return err
		}
		if asJSON {
			return printJSON(events)
		}
		headerColor.Printf("%-8s %-10s %-36s %-4s %-28s %s\n", "POS", "STREAM", "ID", "SEQ", "TYPE", "TIME")
		for _, ev := range events {
			fmt.Printf("%-8d %-10s %-36s %-4d %-28s %s\n",
				ev.Position, ev.StreamType, ev.StreamID, ev.Seq, ev.Type,
				time.UnixMilli(ev.Time).UTC().Format(time.RFC3339))
		}
		return nil
	},
}

func init() {
	feedCmd.Flags().Int64Var(&feedAfter, "after", 0, "read events with position greater than this")
	feedCmd.Flags().IntVar(&feedLimit, "limit", 50, "maximum number of events to print")
	rootCmd.AddCommand(docCmd, feedCmd)
}
