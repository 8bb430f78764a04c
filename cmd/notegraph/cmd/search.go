package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"

	ngerrors "github.com/notegraph/notegraph/internal/errors"
	"github.com/notegraph/notegraph/internal/search"
	"github.com/notegraph/notegraph/internal/store"
)

func newSearchCmd() *cobra.Command {
	var (
		k              int
		tags           []string
		requireAllTags bool
		since          string
		until          string
		dateField      string
		pathPrefix     string
		sortOrder      string
		preferSemantic bool
		preferGraph    bool
		jsonOut        bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the knowledge graph",
		Long: `Search classifies the query, picks a retrieval strategy (vector, graph,
hybrid, temporal, or hierarchical), and returns ranked chunks with
their scoring signals.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			field, err := parseDateField(dateField)
			if err != nil {
				return err
			}

			resp, err := a.searcher.Search(ctx, search.Request{
				Query:          strings.Join(args, " "),
				K:              k,
				Tags:           tags,
				RequireAllTags: requireAllTags,
				Since:          since,
				Until:          until,
				DateField:      field,
				PathPrefix:     pathPrefix,
				Sort:           sortOrder,
				PreferSemantic: preferSemantic,
				PreferGraph:    preferGraph,
			})
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(resp)
			}
			printer().SearchResults(resp)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "limit", "k", 0, "Number of results (default from config)")
	cmd.Flags().StringSliceVar(&tags, "tags", nil, "Filter by tags (OR unless --all-tags)")
	cmd.Flags().BoolVar(&requireAllTags, "all-tags", false, "Require every tag to match")
	cmd.Flags().StringVar(&since, "since", "", "Lower time bound (YYYY[-MM[-DD]], Nd, Nm)")
	cmd.Flags().StringVar(&until, "until", "", "Upper time bound (YYYY[-MM[-DD]], Nd, Nm)")
	cmd.Flags().StringVar(&dateField, "date-field", "auto", "Date column: auto, created, or modified")
	cmd.Flags().StringVar(&pathPrefix, "path-prefix", "", "Restrict to paths under this prefix")
	cmd.Flags().StringVar(&sortOrder, "sort", "", "Result order: score, date_desc, or date_asc")
	cmd.Flags().BoolVar(&preferSemantic, "semantic", false, "Prefer semantic retrieval")
	cmd.Flags().BoolVar(&preferGraph, "graph", false, "Prefer graph retrieval")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}

// parseDateField validates the --date-field value.
func parseDateField(raw string) (store.DateField, error) {
	switch raw {
	case "", string(store.DateFieldAuto):
		return store.DateFieldAuto, nil
	case string(store.DateFieldCreated):
		return store.DateFieldCreated, nil
	case string(store.DateFieldModified):
		return store.DateFieldModified, nil
	default:
		return "", ngerrors.InvalidInput("date-field must be auto, created, or modified")
	}
}
