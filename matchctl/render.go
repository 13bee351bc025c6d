package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/charlhhhh/Openhouse/internal/notify"
	"github.com/charlhhhh/Openhouse/internal/profile"
)

var (
	accent = lipgloss.Color("#8BC34A")
	warn   = lipgloss.Color("#FFC107")
	danger = lipgloss.Color("#e53935")
	muted  = lipgloss.Color("#6b7785")

	titleStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(muted)
	tagStyle   = lipgloss.NewStyle().Foreground(accent)
	cardStyle  = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(0, 1)
)

var stateLines = map[string]string{
	"prepare":    "Ready. Add tags and submit to find today's research partner.",
	"submitting": "Finding your research partner...",
	"matching":   "Matching in progress. Waiting for today's result...",
	"completed":  "Match found!",
}

func renderEvent(w io.Writer, evt notify.Event) {
	switch evt.Kind {
	case notify.KindNotice:
		style := mutedStyle
		switch evt.Level {
		case notify.LevelWarn:
			style = lipgloss.NewStyle().Foreground(warn)
		case notify.LevelError:
			style = lipgloss.NewStyle().Foreground(danger)
		}
		fmt.Fprintln(w, style.Render(fmt.Sprintf("[%s] %s", evt.Level, evt.Message)))
	case notify.KindStateChanged:
		line, ok := stateLines[evt.To]
		if !ok {
			line = evt.To
		}
		fmt.Fprintln(w, line)
	}
}

func renderTags(w io.Writer, tags []string) {
	if len(tags) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No tags yet. Add some with `matchctl tags add`."))
		return
	}
	fmt.Fprintf(w, "Tags (%d/%d): %s\n", len(tags), profile.MaxTags, joinTags(tags))
}

func joinTags(tags []string) string {
	rendered := make([]string, len(tags))
	for i, t := range tags {
		rendered[i] = tagStyle.Render("#" + t)
	}
	return strings.Join(rendered, " ")
}

func renderProfile(w io.Writer, p profile.Profile, cached bool) {
	lines := []string{titleStyle.Render(p.DisplayName)}
	if p.ResearchArea != "" {
		lines = append(lines, p.ResearchArea)
	}
	if p.IntroShort != "" {
		lines = append(lines, p.IntroShort)
	}
	if p.Bio != "" {
		lines = append(lines, "", p.Bio)
	}
	lines = append(lines, "",
		fmt.Sprintf("Match status: %s", p.MatchStatus),
		fmt.Sprintf("Coins: %d", p.Coin),
	)
	if len(p.Tags) > 0 {
		lines = append(lines, "Tags: "+joinTags(p.Tags))
	}
	if cached {
		lines = append(lines, mutedStyle.Render("(cached)"))
	}
	fmt.Fprintln(w, cardStyle.Render(strings.Join(lines, "\n")))
}

func renderPartner(w io.Writer, p *profile.MatchedPartner) {
	if !p.Found() {
		fmt.Fprintln(w, "No match yet.")
		return
	}
	lines := []string{titleStyle.Render("Today's research partner: " + p.DisplayName)}
	if p.ResearchArea != "" {
		lines = append(lines, p.ResearchArea)
	}
	if p.Bio != "" {
		lines = append(lines, p.Bio)
	}
	if len(p.Tags) > 0 {
		lines = append(lines, "Tags: "+joinTags(p.Tags))
	}
	if p.Score > 0 {
		lines = append(lines, fmt.Sprintf("Match score: %d", p.Score))
	}
	if p.Comment != "" {
		lines = append(lines, "", mutedStyle.Render(p.Comment))
	}
	fmt.Fprintln(w, cardStyle.Render(strings.Join(lines, "\n")))
}

func renderHistory(w io.Writer, me profile.Profile, entries []profile.HistoryEntry) {
	if len(entries) == 0 {
		fmt.Fprintf(w, "%s has no matches yet.\n", me.DisplayName)
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers("DATE", "PARTNER", "RESEARCH AREA", "TAGS")
	for _, e := range entries {
		t.Row(e.Date, e.Partner.DisplayName, e.Partner.ResearchArea, strings.Join(e.Partner.Tags, ", "))
	}
	fmt.Fprintf(w, "Match history of %s\n", me.DisplayName)
	fmt.Fprintln(w, t.Render())
}
