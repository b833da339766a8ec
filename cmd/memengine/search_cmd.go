package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newSearchCmd(configFile *string) *cobra.Command {
	params := &struct {
		Limit    int
		Type     string
		Scope    string
		Platform string
		Tags     string
	}{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories by semantic similarity",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if len(args) == 0 {
				return errors.New("query argument is required")
			}
			query := strings.Join(args, " ")

			engine, err := newEngine(ctx, *configFile)
			if err != nil {
				return err
			}
			defer engine.Close()

			results, err := engine.Search(ctx, query, params.Limit, buildFilter(params.Type, params.Scope, params.Platform, params.Tags))
			if err != nil {
				return err
			}

			return printJSON(cmd, results)
		},
	}

	cmd.Flags().IntVarP(&params.Limit, "limit", "n", 10, "maximum number of results")
	cmd.Flags().StringVar(&params.Type, "type", "", "filter by memory type")
	cmd.Flags().StringVar(&params.Scope, "scope", "", "filter by memory scope")
	cmd.Flags().StringVar(&params.Platform, "platform", "", "filter by source platform")
	cmd.Flags().StringVar(&params.Tags, "tags", "", "comma-separated tags to filter by")

	return cmd
}
