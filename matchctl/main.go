// Command matchctl is the terminal client of the Open House daily match.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/api"
	"github.com/charlhhhh/Openhouse/internal/config"
	"github.com/charlhhhh/Openhouse/internal/localstore"
	"github.com/charlhhhh/Openhouse/internal/logging"
	"github.com/charlhhhh/Openhouse/internal/session"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", api.UserMessage(err))
		stop()
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	apiURL     string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	o := &rootOptions{}
	root := &cobra.Command{
		Use:   "matchctl",
		Short: "Open House daily research-partner match",
		Long: `matchctl logs you in to Open House, edits your research tags and runs
the daily match: submit your tags, wait for the server to pair you, and
see who you were matched with.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&o.configPath, "config", "", "config file (default ~/.openhouse/matchctl.yaml)")
	root.PersistentFlags().StringVar(&o.apiURL, "api-url", "", "backend base URL (overrides OPENHOUSE_API_URL)")
	root.PersistentFlags().StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error")

	root.AddCommand(
		newLoginCmd(o),
		newLogoutCmd(o),
		newProfileCmd(o),
		newTagsCmd(o),
		newMatchCmd(o),
		newTodayCmd(o),
		newHistoryCmd(o),
		newConfirmCmd(o),
	)
	return root
}

// app is what every command works with: config, logger, local store,
// session and API client.
type app struct {
	cfg    config.Client
	logger *zap.Logger
	db     *localstore.DB
	sess   *session.Store
	client *api.Client
	in     *bufio.Reader
	out    io.Writer
}

func openApp(o *rootOptions, in io.Reader, out io.Writer) (*app, error) {
	cfg, err := config.LoadClient(o.configPath)
	if err != nil {
		return nil, err
	}
	if o.apiURL != "" {
		cfg.APIURL = o.apiURL
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}

	logger, err := logging.New(cfg.LogLevel, cfg.Dev)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o700); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := localstore.Open(filepath.Join(cfg.DataDir, "matchctl.db"))
	if err != nil {
		return nil, err
	}
	sess, err := session.NewStore(db, logger.Named("session"))
	if err != nil {
		db.Close()
		return nil, err
	}

	return &app{
		cfg:    cfg,
		logger: logger,
		db:     db,
		sess:   sess,
		client: api.New(cfg.APIURL, sess, api.WithLogger(logger.Named("api"))),
		in:     bufio.NewReader(in),
		out:    out,
	}, nil
}

func (a *app) Close() {
	if err := a.db.Close(); err != nil {
		a.logger.Warn("close local store", zap.Error(err))
	}
	_ = a.logger.Sync()
}

func (a *app) requireLogin() error {
	if !a.sess.LoggedIn() {
		return fmt.Errorf("%w: run `matchctl login --email <address>` first", session.ErrNotLoggedIn)
	}
	return nil
}

// run adapts fn into a cobra RunE that opens the app for the duration of
// the command.
func (o *rootOptions) run(fn func(ctx context.Context, a *app, args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		a, err := openApp(o, cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
		defer a.Close()
		return fn(cmd.Context(), a, args)
	}
}
