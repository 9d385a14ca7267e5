// Package cmd implements the docker-tags CLI using Cobra. The single root
// command fetches the tags of an image from its registry, sorts them with
// newest versions first, and prints them one per line.
package cmd

import (
	"fmt"
	"os"
	"regexp"
	"slices"

	"github.com/spf13/cobra"

	"github.com/jmgilman/docker-tags/internal/config"
	"github.com/jmgilman/docker-tags/internal/slogger"
	"github.com/jmgilman/docker-tags/pkg/registry"
)

// appConfig holds the loaded application configuration.
var appConfig *config.Config

var rootCmd = &cobra.Command{
	Use:   "docker-tags [flags] image",
	Short: "List the tags of a container image",
	Long: `docker-tags lists every tag of a container image hosted on an
OCI/Docker v2 registry.

The image reference follows docker conventions: a bare name ("nginx") or
namespaced name ("prom/prometheus") is looked up on Docker Hub, while a
first segment containing a dot names the registry host
("quay.io/prometheus/prometheus").

Tags are sorted with semantic versions first, newest version on top, and
all remaining tags alphabetically after them.`,
	Example: `  # List all tags of nginx on Docker Hub
  docker-tags nginx

  # Ten newest prometheus releases on quay.io
  docker-tags -n 10 quay.io/prometheus/prometheus

  # Only stable 1.x tags
  docker-tags -f '^v?1\.[0-9]+\.[0-9]+$' nginx`,
	Args:          cobra.ExactArgs(1),
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRootCmd,
}

// Execute runs the root command, rendering any failure as an indented
// cause chain on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printErrorChain(os.Stderr, err)
	}
	return err
}

func runRootCmd(cmd *cobra.Command, args []string) error {
	verbosity, err := cmd.Flags().GetCount("verbose")
	if err != nil {
		return fmt.Errorf("get verbose flag: %w", err)
	}

	logger := slogger.New(slogger.Config{Verbosity: verbosity})
	ctx := slogger.WithLogger(cmd.Context(), logger)

	cfg := appConfig
	if cfg == nil {
		cfg = &config.Config{}
	}

	reverse, err := cmd.Flags().GetBool("reverse")
	if err != nil {
		return fmt.Errorf("get reverse flag: %w", err)
	}
	if !cmd.Flags().Changed("reverse") {
		reverse = cfg.Output.Reverse
	}

	limit, err := cmd.Flags().GetInt("limit")
	if err != nil {
		return fmt.Errorf("get limit flag: %w", err)
	}
	if !cmd.Flags().Changed("limit") {
		limit = cfg.Output.Limit
	}

	pattern, err := cmd.Flags().GetString("filter")
	if err != nil {
		return fmt.Errorf("get filter flag: %w", err)
	}

	// Reject a bad pattern before any network traffic.
	var filter *regexp.Regexp
	if pattern != "" {
		filter, err = regexp.Compile(pattern)
		if err != nil {
			return fmt.Errorf("invalid filter pattern %q: %w", pattern, err)
		}
	}

	ref, err := registry.ParseReference(args[0])
	if err != nil {
		return err
	}

	logger.Debug("resolved reference", "registry", ref.Registry, "repository", ref.Repository)

	client := registry.NewClient(registry.ClientConfig{
		Timeout:          cfg.Registry.Timeout,
		DockerConfigPath: cfg.Docker.Config,
	})

	tags, err := client.FetchTags(ctx, ref)
	if err != nil {
		return err
	}

	registry.SortTags(tags)
	if reverse {
		slices.Reverse(tags)
	}
	if filter != nil {
		tags = slices.DeleteFunc(tags, func(t registry.Tag) bool {
			return !filter.MatchString(t.Name)
		})
	}
	if limit > 0 && len(tags) > limit {
		tags = tags[:limit]
	}

	for _, tag := range tags {
		fmt.Fprintln(cmd.OutOrStdout(), tag.Name)
	}

	return nil
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.Flags().BoolP("reverse", "r", false, "sort tags in reverse order")
	rootCmd.Flags().IntP("limit", "n", 0, "maximum number of tags to print (0 = unlimited)")
	rootCmd.Flags().StringP("filter", "f", "", "only print tags matching a regular expression")
	rootCmd.PersistentFlags().CountP("verbose", "v", "increase logging verbosity (-v info, -vv debug)")
}

func initConfig() {
	loader, err := config.NewLoader()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to initialize config: %v\n", err)
		return
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
		return
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config validation failed: %v\n", err)
	}

	appConfig = cfg
}
