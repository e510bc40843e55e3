package main

import (
	"encoding/json"
	"fmt"
	"slices"
	"text/tabwriter"
	"time"

	"github.com/MrWong99/soundboard/internal/avatar"
	"github.com/MrWong99/soundboard/internal/query"
)

func (c *cli) printJSON(v any) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (c *cli) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func (c *cli) printAvatar(a avatar.Avatar) error {
	return c.printAvatars([]avatar.Avatar{a}, "")
}

func (c *cli) printAvatars(avatars []avatar.Avatar, selected string) error {
	if c.output == "json" {
		if avatars == nil {
			avatars = []avatar.Avatar{}
		}
		return c.printJSON(avatars)
	}
	if len(avatars) == 0 {
		fmt.Fprintln(c.out, "No avatars.")
		return nil
	}
	w := c.table()
	fmt.Fprintln(w, "ID\tNAME\tCOLOR\tICON\tVOICES\tIMAGE")
	for _, a := range avatars {
		name := a.Name
		if a.ID == selected {
			name = "* " + name
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n", a.ID, name, a.Color, a.Icon, len(a.Voices), orDash(a.ImagePath))
	}
	return w.Flush()
}

func (c *cli) printVoices(a avatar.Avatar) error {
	if c.output == "json" {
		voices := a.Voices
		if voices == nil {
			voices = []avatar.Voice{}
		}
		return c.printJSON(voices)
	}
	if len(a.Voices) == 0 {
		fmt.Fprintf(c.out, "%s has no voices.\n", a.Name)
		return nil
	}
	w := c.table()
	fmt.Fprintln(w, "#\tID\tNAME\tCATEGORY\tDURATION\tPLAYS\tLAST PLAYED\tCOLOR")
	for i, v := range a.Voices {
		col := "-"
		if v.Color != nil {
			col = string(*v.Color)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			i, v.ID, v.Name, v.Category, v.Duration, v.PlayCount, formatTime(v.LastPlayed), col)
	}
	return w.Flush()
}

func (c *cli) printVoiceRefs(refs []query.VoiceRef) error {
	if c.output == "json" {
		if refs == nil {
			refs = []query.VoiceRef{}
		}
		return c.printJSON(refs)
	}
	if len(refs) == 0 {
		fmt.Fprintln(c.out, "No voices have been played.")
		return nil
	}
	w := c.table()
	fmt.Fprintln(w, "AVATAR\tVOICE\tCATEGORY\tPLAYS\tLAST PLAYED")
	for _, r := range refs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			r.AvatarName, r.Voice.Name, r.Voice.Category, r.Voice.PlayCount, formatTime(r.Voice.LastPlayed))
	}
	return w.Flush()
}

func (c *cli) printSearch(res query.SearchResult) error {
	if c.output == "json" {
		return c.printJSON(res)
	}
	if len(res.Avatars) > 0 {
		if err := c.printAvatars(res.Avatars, ""); err != nil {
			return err
		}
	}
	if len(res.Voices) > 0 {
		if len(res.Avatars) > 0 {
			fmt.Fprintln(c.out)
		}
		w := c.table()
		fmt.Fprintln(w, "AVATAR\tVOICE\tCATEGORY\tVOICE ID")
		for _, r := range res.Voices {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.AvatarName, r.Voice.Name, r.Voice.Category, r.Voice.ID)
		}
		return w.Flush()
	}
	return nil
}

func (c *cli) printSummary(s query.Summary) error {
	if c.output == "json" {
		return c.printJSON(s)
	}
	w := c.table()
	fmt.Fprintf(w, "Avatars:\t%d\n", s.Avatars)
	fmt.Fprintf(w, "Voices:\t%d\n", s.Voices)
	fmt.Fprintf(w, "Total plays:\t%d\n", s.TotalPlays)
	fmt.Fprintf(w, "Total duration:\t%s\n", s.TotalDuration)
	fmt.Fprintf(w, "Last played:\t%s\n", formatTime(s.LastPlayed))
	cats := make([]string, 0, len(s.Categories))
	for cat := range s.Categories {
		cats = append(cats, cat)
	}
	slices.Sort(cats)
	for _, cat := range cats {
		fmt.Fprintf(w, "  %s:\t%d\n", cat, s.Categories[cat])
	}
	return w.Flush()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.Local().Format(time.DateTime)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
