package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/genricoloni/nowpanel/internal/artwork"
	"github.com/genricoloni/nowpanel/internal/config"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// newLookupCommand shows what the fallback artwork lookup would pick for an
// artist credit
func newLookupCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <artist credit>",
		Short: "Search fallback artwork for an artist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}

			credit := strings.Join(args, " ")
			query := artwork.NormalizeArtistQuery(credit)
			if query == "" {
				return fmt.Errorf("%q has no searchable artist name", credit)
			}

			ctx := cmd.Context()
			if timeout := cfg.GetLookupTimeout(); timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			searcher := artwork.NewDeezerSearcherFromConfig(zap.NewNop(), cfg)
			results, err := searcher.SearchArtists(ctx, query)
			if err != nil {
				return fmt.Errorf("lookup failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Query: %s\n", query)
			if len(results) == 0 {
				fmt.Fprintln(out, "No artists found, no fallback image would be shown")
				return nil
			}

			rows := make([][]string, 0, len(results))
			for i, r := range results {
				marker := ""
				if i == 0 {
					marker = "*"
				}
				rows = append(rows, []string{
					marker,
					r.Name,
					strconv.FormatInt(r.Fans, 10),
					r.PictureMedium,
				})
			}
			fmt.Fprintln(out, renderTable([]string{"", "Artist", "Fans", "Picture"}, rows, 3))
			return nil
		},
	}
}
