package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func newListCmd(configFile *string) *cobra.Command {
	params := &struct {
		Limit    int
		Offset   int
		Type     string
		Scope    string
		Platform string
		Tags     string
	}{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List memories, most recently updated first",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			engine, err := newEngine(ctx, *configFile)
			if err != nil {
				return err
			}
			defer engine.Close()

			memories, err := engine.List(ctx, params.Limit, params.Offset, buildFilter(params.Type, params.Scope, params.Platform, params.Tags))
			if err != nil {
				return err
			}

			return printJSON(cmd, memories)
		},
	}

	cmd.Flags().IntVarP(&params.Limit, "limit", "n", 50, "maximum number of results")
	cmd.Flags().IntVar(&params.Offset, "offset", 0, "number of results to skip")
	cmd.Flags().StringVar(&params.Type, "type", "", "filter by memory type")
	cmd.Flags().StringVar(&params.Scope, "scope", "", "filter by memory scope")
	cmd.Flags().StringVar(&params.Platform, "platform", "", "filter by source platform")
	cmd.Flags().StringVar(&params.Tags, "tags", "", "comma-separated tags to filter by")

	return cmd
}
