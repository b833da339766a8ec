package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newDeleteCmd(configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory by id",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			if len(args) != 1 {
				return errors.New("exactly one id argument is required")
			}

			engine, err := newEngine(ctx, *configFile)
			if err != nil {
				return err
			}
			defer engine.Close()

			if err := engine.Delete(ctx, args[0]); err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{"deleted": args[0]})
		},
	}

	return cmd
}
