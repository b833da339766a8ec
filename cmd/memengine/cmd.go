package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/memorylayer-ai/memengine"
	"github.com/memorylayer-ai/memengine/config"
	"github.com/memorylayer-ai/memengine/memory"
)

type cliConfig struct {
	Store    *config.StoreConfig    `yaml:"store"`
	Provider *config.ProviderConfig `yaml:"provider"`
	Pipeline *config.PipelineConfig `yaml:"pipeline"`
	Log      *config.LogConfig      `yaml:"log"`
}

func newCmd() *cobra.Command {
	params := &struct {
		ConfigFile string
	}{}

	cmd := &cobra.Command{
		Use:           "memengine",
		Short:         "Personal memory store with LLM-backed ingestion",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	cmd.PersistentFlags().StringVarP(&params.ConfigFile, "config", "c", "", "path to a yaml config file")

	cmd.AddCommand(
		newIngestCmd(&params.ConfigFile),
		newSearchCmd(&params.ConfigFile),
		newListCmd(&params.ConfigFile),
		newDeleteCmd(&params.ConfigFile),
	)

	return cmd
}

func newEngine(ctx context.Context, configFile string) (*memengine.Engine, error) {
	_ = godotenv.Load()

	opts := []memengine.Option{}
	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read config file %s", configFile)
		}

		var conf cliConfig
		if err := yaml.Unmarshal(data, &conf); err != nil {
			return nil, errors.Wrapf(err, "failed to parse config file %s", configFile)
		}

		if conf.Store != nil {
			opts = append(opts, memengine.WithStoreConfig(conf.Store))
		}
		if conf.Provider != nil {
			opts = append(opts, memengine.WithProviderConfig(conf.Provider))
		}
		if conf.Pipeline != nil {
			opts = append(opts, memengine.WithPipelineConfig(conf.Pipeline))
		}
		if conf.Log != nil {
			opts = append(opts, memengine.WithLogConfig(conf.Log))
		}
	}

	return memengine.NewEngine(ctx, opts...)
}

func buildFilter(memType, scope, platform, tags string) *memory.MemoryFilter {
	if memType == "" && scope == "" && platform == "" && tags == "" {
		return nil
	}

	filter := &memory.MemoryFilter{
		Type:     memory.MemoryType(memType),
		Scope:    memory.MemoryScope(scope),
		Platform: platform,
	}
	if tags != "" {
		for _, tag := range strings.Split(tags, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filter.Tags = append(filter.Tags, tag)
			}
		}
	}
	return filter
}

func printJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrapf(err, "failed to encode output")
	}
	cmd.Println(string(data))
	return nil
}
