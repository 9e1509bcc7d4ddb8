package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	memnet "github.com/memnet/memnet-go/pkg/core"
)

var (
	addCmd = &cobra.Command{
		Use:   "add [text...]",
		Short: "Add a message, extracting and consolidating its facts",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runAdd,
	}

	searchCmd = &cobra.Command{
		Use:   "search [query...]",
		Short: "Search memories by meaning",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runSearch,
	}

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "List memories for an owner",
		Args:  cobra.NoArgs,
		RunE:  runList,
	}

	getCmd = &cobra.Command{
		Use:   "get <id>",
		Short: "Show a single memory",
		Args:  cobra.ExactArgs(1),
		RunE:  runGet,
	}

	updateCmd = &cobra.Command{
		Use:   "update <id> <text...>",
		Short: "Replace the content of a memory",
		Args:  cobra.MinimumNArgs(2),
		RunE:  runUpdate,
	}

	deleteCmd = &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a memory",
		Args:  cobra.ExactArgs(1),
		RunE:  runDelete,
	}

	deleteAllCmd = &cobra.Command{
		Use:   "delete-all",
		Short: "Delete every memory of an owner",
		Args:  cobra.NoArgs,
		RunE:  runDeleteAll,
	}
)

func init() {
	addCmd.Flags().Bool("raw", false, "store the text verbatim without fact extraction")
	searchCmd.Flags().Int("limit", memnet.DefaultSearchLimit, "maximum number of results")
	searchCmd.Flags().Float64("min-score", 0, "drop results scoring below this value")
	searchCmd.Flags().Bool("no-rerank", false, "keep the similarity order")
	listCmd.Flags().Int("limit", memnet.DefaultGetAllLimit, "maximum number of memories")

	rootCmd.AddCommand(addCmd, searchCmd, listCmd, getCmd, updateCmd, deleteCmd, deleteAllCmd)
}

func runAdd(cmd *cobra.Command, args []string) error {
	raw, _ := cmd.Flags().GetBool("raw")
	o := currentOwner()
	return withClient(func(c *memnet.Client) error {
		opts := append(o.addOptions(), memnet.WithInfer(!raw))
		result, err := c.AddText(cmd.Context(), strings.Join(args, " "), opts...)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(result)
		}
		for _, r := range result.Results {
			fmt.Fprintf(cmd.OutOrStdout(), "%-6s %d  %s\n", r.Event, r.ID, r.Memory)
		}
		return nil
	})
}

func runSearch(cmd *cobra.Command, args []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	noRerank, _ := cmd.Flags().GetBool("no-rerank")
	o := currentOwner()

	opts := append(o.searchOptions(), memnet.WithLimit(limit))
	if cmd.Flags().Changed("min-score") {
		minScore, _ := cmd.Flags().GetFloat64("min-score")
		opts = append(opts, memnet.WithMinScore(minScore))
	}
	if noRerank {
		opts = append(opts, memnet.WithRerank(false))
	}

	return withClient(func(c *memnet.Client) error {
		results, err := c.Search(cmd.Context(), strings.Join(args, " "), opts...)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(results)
		}
		for _, r := range results {
			fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %d  %s\n", r.Score, r.Memory.ID, r.Memory.Content)
		}
		return nil
	})
}

func runList(cmd *cobra.Command, _ []string) error {
	limit, _ := cmd.Flags().GetInt("limit")
	o := currentOwner()
	return withClient(func(c *memnet.Client) error {
		opts := append(o.getAllOptions(), memnet.WithLimitForGetAll(limit))
		memories, err := c.GetAll(cmd.Context(), opts...)
		if err != nil {
			return err
		}
		if viper.GetBool("json") {
			return printJSON(memories)
		}
		for _, m := range memories {
			fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", m.ID, m.Content)
		}
		return nil
	})
}

func runGet(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(c *memnet.Client) error {
		m, err := c.Get(cmd.Context(), id)
		if err != nil {
			return err
		}
		if m == nil {
			return fmt.Errorf("%w: memory %d", memnet.ErrNotFound, id)
		}
		if viper.GetBool("json") {
			return printJSON(m)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d  %s\n", m.ID, m.Content)
		return nil
	})
}

func runUpdate(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(c *memnet.Client) error {
		ok, err := c.Update(cmd.Context(), id, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: memory %d", memnet.ErrNotFound, id)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "updated %d\n", id)
		return nil
	})
}

func runDelete(cmd *cobra.Command, args []string) error {
	id, err := parseID(args[0])
	if err != nil {
		return err
	}
	return withClient(func(c *memnet.Client) error {
		if err := c.Delete(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %d\n", id)
		return nil
	})
}

func runDeleteAll(cmd *cobra.Command, _ []string) error {
	o := currentOwner()
	return withClient(func(c *memnet.Client) error {
		return c.DeleteAll(cmd.Context(), o.deleteAllOptions()...)
	})
}

func parseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid memory id %q", memnet.ErrInvalidInput, s)
	}
	return id, nil
}
