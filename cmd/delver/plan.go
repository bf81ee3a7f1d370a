package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/rahul/delver/pkg/config"
	"github.com/spf13/cobra"
)

func newPlanCmd(load func() (*config.Config, error)) *cobra.Command {
	return &cobra.Command{
		Use:   "plan <question>",
		Short: "Show the plan that would be executed, without running it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := load()
			if err != nil {
				return err
			}
			a, err := newApp(cmd.Context(), cfg, io.Discard)
			if err != nil {
				return err
			}
			defer a.Close()

			plan, fallback := a.researcher.Plan(cmd.Context(), strings.Join(args, " "))
			data, err := json.MarshalIndent(map[string]any{"steps": plan}, "", "    ")
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(data))
			if fallback {
				fmt.Fprintln(cmd.ErrOrStderr(), "(plan generation failed; this is the fallback plan)")
			}
			return nil
		},
	}
}
