package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/repository"
)

func (c *cli) voiceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "voice",
		Aliases: []string{"voices"},
		Short:   "Manage the voices of an avatar",
	}
	cmd.AddCommand(
		c.voiceListCmd(),
		c.voiceAddCmd(),
		c.voiceUpdateCmd(),
		c.voiceColorCmd(),
		c.voiceMoveCmd(),
		c.voicePlayCmd(),
		c.voiceResetCmd(),
		c.voiceRemoveCmd(),
		c.voiceRemoveAllCmd(),
	)
	return cmd
}

func (c *cli) voiceListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list [avatar]",
		Short: "List the voices of an avatar in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			return c.printVoices(a)
		},
	}
}

func (c *cli) voiceAddCmd() *cobra.Command {
	var (
		in    repository.NewVoice
		color string
	)
	cmd := &cobra.Command{
		Use:   "add [avatar] [audio-file]",
		Short: "Add a voice from an audio file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			if in.Audio, err = os.ReadFile(args[1]); err != nil {
				return fmt.Errorf("read audio: %w", err)
			}
			if in.Name == "" {
				base := filepath.Base(args[1])
				in.Name = strings.TrimSuffix(base, filepath.Ext(base))
			}
			if color != "" {
				col, err := parseColor(color)
				if err != nil {
					return err
				}
				in.Color = &col
			}
			v, err := c.repo().AddVoice(cmd.Context(), a.ID, in)
			if err != nil {
				return err
			}
			a.Voices = []avatar.Voice{v}
			return c.printVoices(a)
		},
	}
	f := cmd.Flags()
	f.StringVar(&in.Name, "name", "", "display name (file name when empty)")
	f.StringVar(&in.Category, "category", "", "category tag")
	f.DurationVar(&in.Duration, "duration", 0, "playback length, e.g. 2.5s")
	f.StringVar(&in.Key, "key", "", "blob key prefix, extended to a unique key")
	f.StringVar(&color, "color", "", "palette colour overriding the avatar's")
	return cmd
}

func (c *cli) voiceUpdateCmd() *cobra.Command {
	var name, category string
	cmd := &cobra.Command{
		Use:   "update [avatar] [voice]",
		Short: "Rename or recategorise a voice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, v, err := c.findPair(args[0], args[1])
			if err != nil {
				return err
			}
			var u repository.VoiceUpdate
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("category") {
				u.Category = &category
			}
			v, err = c.repo().UpdateVoice(cmd.Context(), a.ID, v.ID, u)
			if err != nil {
				return err
			}
			a.Voices = []avatar.Voice{v}
			return c.printVoices(a)
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "new display name")
	cmd.Flags().StringVar(&category, "category", "", "new category; empty resets it")
	return cmd
}

func (c *cli) voiceColorCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "color [avatar] [voice] [color]",
		Short: "Override the colour of a voice; omit the colour to inherit the avatar's",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, v, err := c.findPair(args[0], args[1])
			if err != nil {
				return err
			}
			var col *avatar.Color
			if len(args) == 3 {
				parsed, err := parseColor(args[2])
				if err != nil {
					return err
				}
				col = &parsed
			}
			v, err = c.repo().UpdateVoiceColor(cmd.Context(), a.ID, v.ID, col)
			if err != nil {
				return err
			}
			a.Voices = []avatar.Voice{v}
			return c.printVoices(a)
		},
	}
}

func (c *cli) voiceMoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "mv [avatar] [from-index] [to-index]",
		Aliases: []string{"move"},
		Short:   "Reorder a voice; indices start at 0",
		Args:    cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			from, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("%w: from-index %q", avatar.ErrInvalidArgument, args[1])
			}
			to, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("%w: to-index %q", avatar.ErrInvalidArgument, args[2])
			}
			if err := c.repo().ReorderVoices(cmd.Context(), a.ID, from, to); err != nil {
				return err
			}
			a, err = c.repo().Avatar(a.ID)
			if err != nil {
				return err
			}
			return c.printVoices(a)
		},
	}
}

func (c *cli) voicePlayCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "play [avatar] [voice]",
		Short: "Record one playback of a voice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, v, err := c.findPair(args[0], args[1])
			if err != nil {
				return err
			}
			v, err = c.repo().TrackUsage(cmd.Context(), a.ID, v.ID)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.out, "%s played %d times\n", v.Name, v.PlayCount)
			return nil
		},
	}
}

func (c *cli) voiceResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reset [avatar] [voice]",
		Short: "Reset the play statistics of a voice",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, v, err := c.findPair(args[0], args[1])
			if err != nil {
				return err
			}
			if _, err := c.repo().ResetUsage(cmd.Context(), a.ID, v.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Reset play statistics of %s\n", v.Name)
			return nil
		},
	}
}

func (c *cli) voiceRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [avatar] [voice]",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete a voice",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, v, err := c.findPair(args[0], args[1])
			if err != nil {
				return err
			}
			if err := c.repo().RemoveVoice(cmd.Context(), a.ID, v.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed voice %s from %s\n", v.Name, a.Name)
			return nil
		},
	}
}

func (c *cli) voiceRemoveAllCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "rm-all [avatar]",
		Short: "Delete every voice of an avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			if err := c.repo().RemoveAllVoices(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed %d voices from %s\n", len(a.Voices), a.Name)
			return nil
		},
	}
}

func (c *cli) findPair(avatarRef, voiceRef string) (avatar.Avatar, avatar.Voice, error) {
	a, err := c.findAvatar(avatarRef)
	if err != nil {
		return avatar.Avatar{}, avatar.Voice{}, err
	}
	v, err := findVoice(a, voiceRef)
	return a, v, err
}
