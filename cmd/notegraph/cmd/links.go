package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/notegraph/notegraph/internal/store"
)

func newLinksCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Manage semantic links",
	}
	cmd.AddCommand(newLinksRelinkCmd())
	cmd.AddCommand(newLinksPendingCmd())
	cmd.AddCommand(newLinksApproveCmd())
	cmd.AddCommand(newLinksRejectCmd())
	cmd.AddCommand(newLinksStatsCmd())
	return cmd
}

func newLinksRelinkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "relink <chunk-id>...",
		Short: "Recompute automatic links for chunks",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			batch := a.linker.LinkBatch(ctx, args)
			fmt.Printf("%d created, %d updated, %d pending, %d failed\n",
				batch.Created, batch.Updated, batch.Pending, batch.Failed)
			return nil
		},
	}
}

func newLinksPendingCmd() *cobra.Command {
	var jsonOut bool

	cmd := &cobra.Command{
		Use:   "pending",
		Short: "List link proposals awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			links, err := a.store.ListPendingLinks(ctx, store.PendingStatusPending)
			if err != nil {
				return err
			}
			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(links)
			}
			printer().PendingLinks(links)
			return nil
		},
	}
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

func newLinksApproveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "approve <id>",
		Short: "Approve a pending link, creating a manual edge pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.linker.ApprovePending(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("approved %s\n", args[0])
			return nil
		},
	}
}

func newLinksRejectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reject <id>",
		Short: "Reject a pending link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			if err := a.linker.RejectPending(ctx, args[0]); err != nil {
				return err
			}
			fmt.Printf("rejected %s\n", args[0])
			return nil
		},
	}
}

func newLinksStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show link graph statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.store.Statistics(ctx)
			if err != nil {
				return err
			}
			return json.NewEncoder(os.Stdout).Encode(stats)
		},
	}
}
