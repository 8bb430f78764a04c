package cmd

import (
	"encoding/json"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

func newAnswerCmd() *cobra.Command {
	var (
		k       int
		jsonOut bool
	)

	cmd := &cobra.Command{
		Use:   "answer <question>",
		Short: "Answer a question from the corpus",
		Long: `Answer retrieves the most relevant chunks and extracts a bulleted
answer from their leading sentences, with citations. No generative
model is involved; every bullet is verbatim corpus text.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.close()

			out, err := a.assembler.AnswerQuestion(ctx, strings.Join(args, " "), k)
			if err != nil {
				return err
			}

			if jsonOut {
				return json.NewEncoder(os.Stdout).Encode(out)
			}
			printer().Answer(out)
			return nil
		},
	}

	cmd.Flags().IntVarP(&k, "limit", "k", 0, "Number of chunks to retrieve")
	cmd.Flags().BoolVar(&jsonOut, "json", false, "Emit JSON instead of formatted output")
	return cmd
}
