package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/genricoloni/nowpanel/internal/config"
	"github.com/genricoloni/nowpanel/internal/domain"
	"github.com/genricoloni/nowpanel/internal/layout"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// discardSink drops rendered labels, the measure command only prints them
type discardSink struct{}

func (discardSink) SetLabel(domain.Label, domain.LabelContent) error { return nil }
func (discardSink) SetCover(string) error                          { return nil }

// newMeasureCommand reports whether text would scroll in the title and
// artist slots
func newMeasureCommand(configFlag *string) *cobra.Command {
	return &cobra.Command{
		Use:   "measure <text>",
		Short: "Check whether text would scroll in the panel labels",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configFlag)
			if err != nil {
				return err
			}

			engine, err := layout.NewEngineFromConfig(zap.NewNop(), cfg, discardSink{})
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			slots := []struct {
				label domain.Label
				width float64
			}{
				{domain.LabelTitle, cfg.GetTitleWidth()},
				{domain.LabelArtist, cfg.GetArtistWidth()},
			}

			rows := make([][]string, 0, len(slots))
			for _, s := range slots {
				content := engine.Layout(s.label, text)
				rows = append(rows, []string{
					string(s.label),
					strconv.FormatFloat(s.width, 'f', 0, 64),
					strconv.FormatBool(content.Overflowing),
				})
			}

			fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Label", "Width", "Scrolling"}, rows, 2))
			return nil
		},
	}
}
