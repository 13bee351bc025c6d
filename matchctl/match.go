package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/charlhhhh/Openhouse/internal/api"
	"github.com/charlhhhh/Openhouse/internal/match"
	"github.com/charlhhhh/Openhouse/internal/notify"
	"github.com/charlhhhh/Openhouse/internal/profile"
)

var errNotStarted = errors.New("today's match was not started")

type matchOptions struct {
	submit bool
	watch  bool
	tags   []string
}

func newMatchCmd(o *rootOptions) *cobra.Command {
	opts := matchOptions{}
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Run today's match and wait for your partner",
		Long: `match restores today's state from the server. With --submit it saves your
tags, starts matching and keeps polling until a partner is revealed.
Interrupting the command does not cancel matching on the server; run it
again later to resume.`,
		Args: cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			return runMatch(ctx, a, opts)
		}),
	}
	cmd.Flags().BoolVar(&opts.submit, "submit", false, "submit your tags and start matching")
	cmd.Flags().BoolVar(&opts.watch, "watch", true, "listen for push hints next to polling")
	cmd.Flags().StringSliceVar(&opts.tags, "tag", nil, "add a tag before submitting (repeatable)")
	return cmd
}

func runMatch(ctx context.Context, a *app, opts matchOptions) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	bus := notify.NewBus(32)
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	m := match.NewMachine(a.client, a.sess,
		match.WithBus(bus),
		match.WithCache(a.db),
		match.WithLogger(a.logger.Named("match")),
		match.WithConfig(match.Config{
			SubmitDelay:  a.cfg.SubmitDelay,
			PollInterval: a.cfg.PollInterval,
		}),
	)
	defer m.Close()

	id := a.sess.AddListener(func() {
		if !a.sess.LoggedIn() {
			fmt.Fprintln(a.out, "Session ended, please login again")
		}
	})
	defer a.sess.RemoveListener(id)

	if err := m.Load(ctx); err != nil {
		drain(a, events)
		return err
	}

	if m.State() == match.Prepare {
		for _, t := range opts.tags {
			if err := m.AddTag(t); err != nil {
				return err
			}
		}
		if !opts.submit {
			drain(a, events)
			renderTags(a.out, m.Tags())
			fmt.Fprintln(a.out, "Run `matchctl match --submit` to find today's research partner.")
			return nil
		}
		if err := m.Submit(ctx); err != nil {
			drain(a, events)
			return err
		}
	}

	if opts.watch {
		watchHints(ctx, a, m)
	}

	for {
		select {
		case <-ctx.Done():
			fmt.Fprintln(a.out, "Stopped waiting. Matching continues on the server; run `matchctl match` to check again.")
			return nil
		case evt := <-events:
			renderEvent(a.out, evt)
			switch {
			case evt.Kind == notify.KindPartnerFound:
				renderPartner(a.out, evt.Partner)
				return nil
			case evt.Kind == notify.KindStateChanged && evt.To == match.Prepare.String():
				return errNotStarted
			}
		}
	}
}

// watchHints nudges the poll loop whenever the server pushes match_ready.
// Polling keeps working when the stream cannot be opened.
func watchHints(ctx context.Context, a *app, m *match.Machine) {
	hints, err := a.client.WatchMatches(ctx)
	if err != nil {
		a.logger.Debug("match hints unavailable, polling only", zap.Error(err))
		return
	}
	go func() {
		for h := range hints {
			if h.Type == api.HintMatchReady {
				m.Nudge()
			}
		}
	}()
}

func drain(a *app, events <-chan notify.Event) {
	for {
		select {
		case evt := <-events:
			renderEvent(a.out, evt)
		default:
			return
		}
	}
}

func newTodayCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "today",
		Short: "Ask the server about today's match without running the flow",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			partner, msg, err := a.client.TodayMatchStatus(ctx)
			if err != nil {
				return err
			}
			if partner == nil {
				fmt.Fprintln(a.out, msg)
				return nil
			}
			renderPartner(a.out, partner)
			return nil
		}),
	}
}

func newHistoryCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "List your past matches",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}

			var (
				me      profile.Profile
				entries []profile.HistoryEntry
			)
			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				var err error
				me, err = a.client.Profile(gctx)
				return err
			})
			g.Go(func() error {
				var err error
				entries, err = a.client.MatchHistory(gctx)
				return err
			})
			if err := g.Wait(); err != nil {
				return err
			}
			renderHistory(a.out, me, entries)
			return nil
		}),
	}
}

func newConfirmCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "confirm",
		Short: "Confirm today's match",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			if err := a.requireLogin(); err != nil {
				return err
			}
			if err := a.client.ConfirmMatch(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Match confirmed")
			return nil
		}),
	}
}
