package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

var (
	cfgFile string

	rootCmd = &cobra.Command{
		Use:           "memnet",
		Short:         "Store, consolidate and search long-term memories",
		Long:          longRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (.yaml, .yml or .json); defaults to .env and the environment")
	rootCmd.PersistentFlags().String("user", "", "user id owning the memories")
	rootCmd.PersistentFlags().String("agent", "", "agent id owning the memories")
	rootCmd.PersistentFlags().String("run", "", "run id owning the memories")
	rootCmd.PersistentFlags().Bool("json", false, "print results as JSON")

	for _, name := range []string{"user", "agent", "run", "json"} {
		_ = viper.BindPFlag(name, rootCmd.PersistentFlags().Lookup(name))
	}
	viper.SetEnvPrefix("MEMNET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// loadConfig picks the loader from the config file extension and falls
// back to the environment when no file is given.
func loadConfig() (*memnet.Config, error) {
	path := cfgFile
	if path == "" {
		path = viper.GetString("config")
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		return memnet.LoadConfigFromEnv()
	case ".yaml", ".yml":
		return memnet.LoadConfigFromYAML(path)
	case ".json":
		return memnet.LoadConfigFromJSON(path)
	case ".env":
		return memnet.LoadConfigFromEnvFile(path)
	default:
		return nil, fmt.Errorf("%w: unsupported config file %q", memnet.ErrInvalidConfig, path)
	}
}

// withClient opens a client for the duration of fn.
func withClient(fn func(*memnet.Client) error) (err error) {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	client, err := memnet.NewClient(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := client.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return fn(client)
}

type owner struct {
	user, agent, run string
}

func currentOwner() owner {
	return owner{
		user:  viper.GetString("user"),
		agent: viper.GetString("agent"),
		run:   viper.GetString("run"),
	}
}

// Unset flags stay absent rather than matching the empty id.
func (o owner) addOptions() []memnet.AddOption {
	var opts []memnet.AddOption
	if o.user != "" {
		opts = append(opts, memnet.WithUserID(o.user))
	}
	if o.agent != "" {
		opts = append(opts, memnet.WithAgentID(o.agent))
	}
	if o.run != "" {
		opts = append(opts, memnet.WithRunID(o.run))
	}
	return opts
}

func (o owner) searchOptions() []memnet.SearchOption {
	var opts []memnet.SearchOption
	if o.user != "" {
		opts = append(opts, memnet.WithUserIDForSearch(o.user))
	}
	if o.agent != "" {
		opts = append(opts, memnet.WithAgentIDForSearch(o.agent))
	}
	if o.run != "" {
		opts = append(opts, memnet.WithRunIDForSearch(o.run))
	}
	return opts
}

func (o owner) getAllOptions() []memnet.GetAllOption {
	var opts []memnet.GetAllOption
	if o.user != "" {
		opts = append(opts, memnet.WithUserIDForGetAll(o.user))
	}
	if o.agent != "" {
		opts = append(opts, memnet.WithAgentIDForGetAll(o.agent))
	}
	if o.run != "" {
		opts = append(opts, memnet.WithRunIDForGetAll(o.run))
	}
	return opts
}

func (o owner) deleteAllOptions() []memnet.DeleteAllOption {
	var opts []memnet.DeleteAllOption
	if o.user != "" {
		opts = append(opts, memnet.WithUserIDForDeleteAll(o.user))
	}
	if o.agent != "" {
		opts = append(opts, memnet.WithAgentIDForDeleteAll(o.agent))
	}
	if o.run != "" {
		opts = append(opts, memnet.WithRunIDForDeleteAll(o.run))
	}
	return opts
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

var longRoot = `
memnet keeps long-term memories for users, agents and runs.

New facts are extracted from conversations and either stored as new
memories or merged into a sufficiently similar existing one.

Examples:
  memnet add --user alice "I like coffee"
  memnet search --user alice "what does alice drink"
  memnet list --user alice --json
`
