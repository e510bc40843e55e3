package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func (c *cli) wipeCmd() *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "wipe",
		Short: "Delete every avatar and voice",
		Long: `wipe empties the collection and schedules every image and audio blob
for deletion. It also recovers a collection whose stored record cannot be
read.`,
		Args:        cobra.NoArgs,
		Annotations: map[string]string{allowLoadError: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("wipe deletes everything; pass --yes to confirm")
			}
			n := len(c.repo().Avatars())
			if err := c.repo().DeleteAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Deleted %d avatars\n", n)
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "confirm the deletion")
	return cmd
}

func (c *cli) sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:         "sweep",
		Short:       "Retry blob deletions left over from earlier runs",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{allowLoadError: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			res, err := c.app.Cleaner().Sweep(cmd.Context())
			if err != nil {
				return err
			}
			if c.output == "json" {
				return c.printJSON(res)
			}
			fmt.Fprintf(c.out, "Deleted %d blobs, %d still pending\n", res.Deleted, res.Failed)
			return nil
		},
	}
}
