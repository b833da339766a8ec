package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/memorylayer-ai/memengine/provider"
)

func newIngestCmd(configFile *string) *cobra.Command {
	params := &struct {
		User     string
		URL      string
		Platform string
		File     string
	}{}

	cmd := &cobra.Command{
		Use:   "ingest [text]",
		Short: "Extract and consolidate memories from conversation text",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			var text string
			switch {
			case params.File != "":
				data, err := os.ReadFile(params.File)
				if err != nil {
					return errors.Wrapf(err, "failed to read input file")
				}
				text = string(data)
			case len(args) > 0:
				text = strings.Join(args, " ")
			default:
				return errors.New("text argument or --file is required")
			}

			engine, err := newEngine(ctx, *configFile)
			if err != nil {
				return err
			}
			defer engine.Close()

			ids, err := engine.Ingest(ctx, params.User, text, &provider.ExtractionContext{
				URL:      params.URL,
				Platform: params.Platform,
			})
			if err != nil {
				return err
			}

			return printJSON(cmd, map[string]any{"ids": ids})
		},
	}

	cmd.Flags().StringVarP(&params.User, "user", "u", "local_user", "user id to attribute memories to")
	cmd.Flags().StringVar(&params.URL, "url", "", "origin url of the conversation")
	cmd.Flags().StringVar(&params.Platform, "platform", "", "platform label such as chatgpt or claude")
	cmd.Flags().StringVarP(&params.File, "file", "f", "", "read conversation text from a file")

	return cmd
}
