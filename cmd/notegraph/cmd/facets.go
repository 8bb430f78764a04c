package cmd

import (
	"encoding/json"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/notegraph/notegraph/internal/search"
)

func newFacetsCmd() *cobra.Command {
	var (
		since      string
		until      string
		pathPrefix string
		jsonOut    bool
	)

	cmd := &cobra.Command{
		Use:   "facets",
		Short: "Show tag counts and the time histogram",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			now := time.Now().UTC()
			var sinceT, untilT *time.Time
			if since != "" {
				t, err := search.ParseTimeSpec(since, now)
				if err != nil {
					return err
				}
				sinceT = &t
			}
			if until != "" {
				t, err := search.ParseTimeSpec(until, now)
				if err != nil {
					return err
				}
				untilT = &t
			}

			facets, err := a.store.FetchFacets(ctx, sinceT, untilT, pathPrefix)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(facets)
			}
			printer().Facets(facets)
			return nil
		},
	}

	cmd.Flags().StringVar(&since, "since", "", "Lower time bound (YYYY[-MM[-DD]], Nd, Nm)")
	cmd.Flags().StringVar(&until, "until", "", "Upper time bound (YYYY[-MM[-DD]], Nd, Nm)")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "Restrict to paths under this prefix")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}
