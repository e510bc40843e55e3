package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/repository"
)

func (c *cli) avatarCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "avatar",
		Aliases: []string{"avatars"},
		Short:   "Manage avatars",
	}
	cmd.AddCommand(
		c.avatarListCmd(),
		c.avatarAddCmd(),
		c.avatarUpdateCmd(),
		c.avatarImageCmd(),
		c.avatarRemoveCmd(),
	)
	return cmd
}

func (c *cli) avatarListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List avatars",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.printAvatars(c.repo().Avatars(), c.repo().Selected())
		},
	}
}

func (c *cli) avatarAddCmd() *cobra.Command {
	var color, icon, image string
	cmd := &cobra.Command{
		Use:   "add [name]",
		Short: "Create an avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := repository.NewAvatar{Name: args[0]}
			var err error
			if color != "" {
				if in.Color, err = parseColor(color); err != nil {
					return err
				}
			}
			if icon != "" {
				if in.Icon, err = parseIcon(icon); err != nil {
					return err
				}
			}
			if image != "" {
				if in.Image, err = os.ReadFile(image); err != nil {
					return fmt.Errorf("read image: %w", err)
				}
			}
			a, err := c.repo().AddAvatar(cmd.Context(), in)
			if err != nil {
				return err
			}
			return c.printAvatar(a)
		},
	}
	cmd.Flags().StringVar(&color, "color", "", "palette colour (random when empty)")
	cmd.Flags().StringVar(&icon, "icon", "", "icon name (person when empty)")
	cmd.Flags().StringVar(&image, "image", "", "custom image file")
	return cmd
}

func (c *cli) avatarUpdateCmd() *cobra.Command {
	var (
		name, color, icon string
		clearImage        bool
	)
	cmd := &cobra.Command{
		Use:   "update [avatar]",
		Short: "Change the name, colour, or icon of an avatar",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			u := repository.AvatarUpdate{ClearImage: clearImage}
			if cmd.Flags().Changed("name") {
				u.Name = &name
			}
			if cmd.Flags().Changed("color") {
				col, err := parseColor(color)
				if err != nil {
					return err
				}
				u.Color = &col
			}
			if cmd.Flags().Changed("icon") {
				ic, err := parseIcon(icon)
				if err != nil {
					return err
				}
				u.Icon = &ic
			}
			a, err = c.repo().UpdateAvatar(cmd.Context(), a.ID, u)
			if err != nil {
				return err
			}
			return c.printAvatar(a)
		},
	}
	f := cmd.Flags()
	f.StringVar(&name, "name", "", "new display name")
	f.StringVar(&color, "color", "", "new palette colour")
	f.StringVar(&icon, "icon", "", "new icon name")
	f.BoolVar(&clearImage, "clear-image", false, "remove the custom image")
	return cmd
}

func (c *cli) avatarImageCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "image [avatar] [image-file]",
		Short: "Set the custom image of an avatar",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			data, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			a, err = c.repo().SetAvatarImage(cmd.Context(), a.ID, data)
			if err != nil {
				return err
			}
			return c.printAvatar(a)
		},
	}
}

func (c *cli) avatarRemoveCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "rm [avatar]",
		Aliases: []string{"remove", "delete"},
		Short:   "Delete an avatar with all its voices",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.findAvatar(args[0])
			if err != nil {
				return err
			}
			if err := c.repo().RemoveAvatar(cmd.Context(), a.ID); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "Removed avatar %s (%d voices)\n", a.Name, len(a.Voices))
			return nil
		},
	}
}
