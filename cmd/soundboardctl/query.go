package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func (c *cli) searchCmd() *cobra.Command {
	var suggestions int
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "Find avatars by name and voices by name or category",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q := strings.Join(args, " ")
			res := c.repo().Search(q)
			if !res.Empty() {
				return c.printSearch(res)
			}
			sug := c.repo().Suggest(q, suggestions)
			if c.output == "json" {
				return c.printJSON(map[string]any{"avatars": []any{}, "voices": []any{}, "suggestions": sug})
			}
			fmt.Fprintf(c.out, "No matches for %q.\n", q)
			if len(sug) > 0 {
				texts := make([]string, len(sug))
				for i, s := range sug {
					texts[i] = s.Text
				}
				fmt.Fprintf(c.out, "Did you mean: %s?\n", strings.Join(texts, ", "))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&suggestions, "suggestions", 3, "alternatives to offer when nothing matches")
	return cmd
}

func (c *cli) topCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "top",
		Short: "List the most played voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printVoiceRefs(c.repo().MostUsed(limit))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of voices")
	return cmd
}

func (c *cli) recentCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "recent",
		Short: "List the most recently played voices",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printVoiceRefs(c.repo().RecentlyUsed(limit))
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "maximum number of voices")
	return cmd
}

func (c *cli) statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarise the collection",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printSummary(c.repo().Stats())
		},
	}
}
