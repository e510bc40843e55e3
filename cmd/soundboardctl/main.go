// Command soundboardctl manages the avatar and voice collection directly on
// the configured stores.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/MrWong99/soundboard/internal/app"
	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/config"
	"github.com/MrWong99/soundboard/internal/observe"
	"github.com/MrWong99/soundboard/internal/repository"
)

// allowLoadError marks commands that must run even when the stored
// collection cannot be loaded.
const allowLoadError = "allow-load-error"

// cli holds the flags and the application shared by every command.
type cli struct {
	configPath string
	dataDir    string
	output     string
	verbose    bool
	ephemeral  bool

	out io.Writer
	app *app.App
}

func main() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "soundboardctl: %v\n", err)
		os.Exit(1)
	}
}

// execute runs one command line and always releases the stores afterwards.
func execute(ctx context.Context, args []string, out io.Writer) error {
	c := &cli{out: out}
	root := c.rootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	root.SetErr(out)

	err := root.ExecuteContext(ctx)
	return errors.Join(err, c.close())
}

func (c *cli) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "soundboardctl",
		Short: "Manage soundboard avatars and voices",
		Long: `soundboardctl edits the avatar collection on the stores named in the
soundboard configuration file.

Commands:
  avatar   Manage avatars
  voice    Manage the voices of an avatar
  search   Find avatars and voices
  top      Most played voices
  recent   Recently played voices
  stats    Collection summary
  wipe     Delete every avatar and voice
  sweep    Retry pending blob deletions`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.open,
	}

	pf := root.PersistentFlags()
	pf.StringVarP(&c.configPath, "config", "c", "soundboard.yaml", "path to the YAML configuration file")
	pf.StringVar(&c.dataDir, "data-dir", "", "override storage.data_dir")
	pf.StringVarP(&c.output, "output", "o", "text", "output format: text, json")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "log at debug level")
	pf.BoolVar(&c.ephemeral, "ephemeral", false, "use in-memory stores and discard everything on exit")

	root.AddCommand(
		c.avatarCmd(),
		c.voiceCmd(),
		c.searchCmd(),
		c.topCmd(),
		c.recentCmd(),
		c.statsCmd(),
		c.wipeCmd(),
		c.sweepCmd(),
	)
	return root
}

// open loads the configuration, builds the application, and loads the
// collection.
func (c *cli) open(cmd *cobra.Command, _ []string) error {
	if cmd.Name() == "help" || cmd.HasParent() && cmd.Parent().Name() == "completion" {
		return nil
	}
	if c.output != "text" && c.output != "json" {
		return fmt.Errorf("unknown output format %q", c.output)
	}

	lvl := &slog.LevelVar{}
	lvl.Set(slog.LevelWarn)
	if c.verbose {
		lvl.Set(slog.LevelDebug)
	}
	slog.SetDefault(observe.NewLogger(os.Stderr, lvl))

	cfg, err := config.Load(c.configPath)
	switch {
	case errors.Is(err, os.ErrNotExist):
		cfg = config.Default()
	case err != nil:
		return err
	}
	if c.dataDir != "" {
		cfg.Storage.DataDir = c.dataDir
	}
	if c.ephemeral {
		cfg.Storage.Metadata.Backend = config.MetadataMemory
		cfg.Storage.Blob.Backend = config.BlobMemory
	}

	ctx := cmd.Context()
	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	c.app = a
	if err := a.Start(ctx); err != nil && cmd.Annotations[allowLoadError] == "" {
		return err
	}
	return nil
}

// close waits for background blob deletions and closes the stores.
func (c *cli) close() error {
	if c.app == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err := c.app.Shutdown(ctx)
	c.app = nil
	return err
}

func (c *cli) repo() *repository.Repository {
	return c.app.Repository()
}

// findAvatar resolves ref as an avatar id, then as a case-insensitive name.
func (c *cli) findAvatar(ref string) (avatar.Avatar, error) {
	if a, err := c.repo().Avatar(ref); err == nil {
		return a, nil
	}
	var matches []avatar.Avatar
	for _, a := range c.repo().Avatars() {
		if strings.EqualFold(a.Name, ref) {
			matches = append(matches, a)
		}
	}
	switch len(matches) {
	case 0:
		return avatar.Avatar{}, fmt.Errorf("avatar %q: %w", ref, avatar.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return avatar.Avatar{}, fmt.Errorf("%d avatars are named %q, use the id", len(matches), ref)
	}
}

// findVoice resolves ref within a as a voice id, then as a case-insensitive
// name.
func findVoice(a avatar.Avatar, ref string) (avatar.Voice, error) {
	if i := a.VoiceIndex(ref); i >= 0 {
		return a.Voices[i], nil
	}
	var matches []avatar.Voice
	for _, v := range a.Voices {
		if strings.EqualFold(v.Name, ref) {
			matches = append(matches, v)
		}
	}
	switch len(matches) {
	case 0:
		return avatar.Voice{}, fmt.Errorf("voice %q of %q: %w", ref, a.Name, avatar.ErrNotFound)
	case 1:
		return matches[0], nil
	default:
		return avatar.Voice{}, fmt.Errorf("%d voices of %q are named %q, use the id", len(matches), a.Name, ref)
	}
}

func parseColor(s string) (avatar.Color, error) {
	c := avatar.Color(s)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: color %q; valid: %v", avatar.ErrInvalidArgument, s, avatar.Palette)
	}
	return c, nil
}

func parseIcon(s string) (avatar.Icon, error) {
	i := avatar.Icon(s)
	if !i.IsValid() {
		return "", fmt.Errorf("%w: icon %q; valid: %v", avatar.ErrInvalidArgument, s, avatar.Icons)
	}
	return i, nil
}
