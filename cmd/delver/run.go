package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/rahul/delver/internal/engine"
	"github.com/rahul/delver/pkg/config"
	"github.com/spf13/cobra"
)

const cliChatID = "cli"

func newRunCmd(load func() (*config.Config, error)) *cobra.Command {
	var (
		asJSON  bool
		output  string
		verbose bool
	)
	cmd := &cobra.Command{
		Use:   "run <question>",
		Short: "Research a question and print the report",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()

			cfg, err := load()
			if err != nil {
				return err
			}

			logOut := io.Discard
			if verbose {
				logOut = stderr
			}
			a, err := newApp(cmd.Context(), cfg, logOut)
			if err != nil {
				if asJSON {
					writeEvent(stdout, engine.Event{Kind: engine.EventError, Data: err.Error()})
				}
				return err
			}
			defer a.Close()

			report := func(e engine.Event) {
				switch {
				case asJSON:
					writeEvent(stdout, e)
				case e.Kind == engine.EventStatus:
					fmt.Fprintln(stderr, "›", e.Data)
				}
			}

			result, err := a.researcher.Research(cmd.Context(), cliChatID, query, report)
			if err != nil {
				return err
			}

			if output == "" {
				output = cfg.Output.Path
			}
			if output != "" && output != "-" {
				data, err := result.MarshalIndent()
				if err != nil {
					return err
				}
				if err := os.WriteFile(output, data, 0644); err != nil {
					return fmt.Errorf("write result: %w", err)
				}
			}

			if !asJSON {
				fmt.Fprintln(stdout, renderMarkdown(result.FinalAnswer))
				if len(result.SourcesUsed) > 0 {
					fmt.Fprintln(stdout, "\nSources:")
					for _, src := range result.SourcesUsed {
						fmt.Fprintln(stdout, "  -", src)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print progress and the result as JSON events")
	cmd.Flags().StringVarP(&output, "output", "o", "", "where to write the result record (default from config, - to skip)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "print structured log events to stderr")
	return cmd
}

func writeEvent(w io.Writer, e engine.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintln(w, string(data))
}

// renderMarkdown styles md for the terminal, returning it unchanged when
// rendering fails.
func renderMarkdown(md string) string {
	if strings.TrimSpace(md) == "" {
		return md
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return md
	}
	out, err := r.Render(md)
	if err != nil {
		return md
	}
	return strings.TrimRight(out, "\n")
}
