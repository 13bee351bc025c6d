package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/profile"
)

var errTagsLocked = errors.New("tags can only be changed before submitting today's match")

func newProfileCmd(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "profile",
		Short: "Show your profile (falls back to the cached copy when offline)",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			p, cached, err := loadProfile(ctx, a)
			if err != nil {
				return err
			}
			renderProfile(a.out, p, cached)
			return nil
		}),
	}
}

// loadProfile fetches the profile and refreshes the snapshot. When the
// backend cannot be reached the snapshot is returned with cached set.
func loadProfile(ctx context.Context, a *app) (p profile.Profile, cached bool, err error) {
	fetchErr := a.requireLogin()
	if fetchErr == nil {
		p, fetchErr = a.client.Profile(ctx)
		if fetchErr == nil {
			if err := a.db.SaveProfile(p); err != nil {
				a.logger.Warn("cache profile", zap.Error(err))
			}
			return p, false, nil
		}
		a.logger.Warn("fetch profile", zap.Error(fetchErr))
	}

	snap, updatedAt, ok, err := a.db.LoadProfile()
	if err != nil {
		return p, false, err
	}
	if !ok {
		return p, false, fetchErr
	}
	fmt.Fprintf(a.out, "(offline, showing profile cached at %s)\n", updatedAt.Local().Format("2006-01-02 15:04"))
	return snap, true, nil
}

func newTagsCmd(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tags",
		Short: "List or edit your research tags",
	}

	ls := &cobra.Command{
		Use:   "ls",
		Short: "List your tags",
		Args:  cobra.NoArgs,
		RunE: o.run(func(ctx context.Context, a *app, _ []string) error {
			p, _, err := loadProfile(ctx, a)
			if err != nil {
				return err
			}
			renderTags(a.out, p.Tags)
			return nil
		}),
	}

	add := &cobra.Command{
		Use:   "add TAG...",
		Short: fmt.Sprintf("Add tags (at most %d, %d characters each)", profile.MaxTags, profile.MaxTagLength),
		Args:  cobra.MinimumNArgs(1),
		RunE: o.run(func(ctx context.Context, a *app, args []string) error {
			return editTags(ctx, a, func(tags []string) ([]string, error) {
				var err error
				for _, t := range args {
					if tags, err = profile.AddTag(tags, t); err != nil {
						return nil, err
					}
				}
				return tags, nil
			})
		}),
	}

	rm := &cobra.Command{
		Use:   "rm TAG|POSITION",
		Short: "Remove a tag by name or by its 1-based position",
		Args:  cobra.ExactArgs(1),
		RunE: o.run(func(ctx context.Context, a *app, args []string) error {
			return editTags(ctx, a, func(tags []string) ([]string, error) {
				i := slices.Index(tags, args[0])
				if i < 0 {
					n, err := strconv.Atoi(args[0])
					if err != nil {
						return nil, &profile.ValidationError{Tag: args[0], Reason: "no such tag"}
					}
					i = n - 1
				}
				return profile.RemoveTag(tags, i)
			})
		}),
	}

	cmd.AddCommand(ls, add, rm)
	return cmd
}

// editTags applies edit to the server-side tags and saves the result. Tags
// are frozen once today's match has been submitted.
func editTags(ctx context.Context, a *app, edit func([]string) ([]string, error)) error {
	if err := a.requireLogin(); err != nil {
		return err
	}
	p, err := a.client.Profile(ctx)
	if err != nil {
		return fmt.Errorf("load profile: %w", err)
	}
	if p.MatchStatus != profile.StatusAvailable {
		return errTagsLocked
	}

	tags, err := edit(slices.Clone(p.Tags))
	if err != nil {
		return err
	}
	if err := a.client.UpdateTags(ctx, tags); err != nil {
		return fmt.Errorf("save tags: %w", err)
	}
	p.Tags = tags
	if err := a.db.SaveProfile(p); err != nil {
		a.logger.Warn("cache profile", zap.Error(err))
	}
	renderTags(a.out, tags)
	return nil
}
