package match

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/charlhhhh/Openhouse/internal/notify"
	"github.com/charlhhhh/Openhouse/internal/profile"
	"github.com/charlhhhh/Openhouse/internal/session"
)

const (
	DefaultSubmitDelay  = 7000 * time.Millisecond
	DefaultPollInterval = 30 * time.Second
)

var (
	// ErrBusy is returned when an edit or submit arrives outside Prepare.
	ErrBusy = errors.New("match: not in prepare state")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("match: machine closed")
)

// Backend is the subset of the API client the machine needs.
type Backend interface {
	Profile(ctx context.Context) (profile.Profile, error)
	UpdateTags(ctx context.Context, tags []string) error
	TriggerMatch(ctx context.Context) error
	TodayMatch(ctx context.Context) (*profile.MatchedPartner, error)
}

// SessionGate is the part of session.Store the machine uses.
type SessionGate interface {
	LoggedIn() bool
	Clear() error
}

// ProfileCache receives every freshly loaded profile.
type ProfileCache interface {
	SaveProfile(p profile.Profile) error
}

// Config holds the two timings of the flow.
type Config struct {
	SubmitDelay  time.Duration
	PollInterval time.Duration
}

// Option customizes a Machine.
type Option func(*Machine)

func WithClock(c clockwork.Clock) Option { return func(m *Machine) { m.clock = c } }
func WithBus(b *notify.Bus) Option { return func(m *Machine) { m.bus = b } }
func WithLogger(l *zap.Logger) Option { return func(m *Machine) { m.logger = l } }
func WithCache(c ProfileCache) Option { return func(m *Machine) { m.cache = c } }
func WithConfig(cfg Config) Option { return func(m *Machine) { m.cfg = cfg } }

type pollLoop struct {
	ticker clockwork.Ticker
	cancel context.CancelFunc
	nudge  chan struct{}
}

// Machine runs the matching flow for one view. All transitions happen under
// mu; backend calls run in goroutines that report back through dispatch.
type Machine struct {
	backend Backend
	session SessionGate
	cache   ProfileCache
	bus     *notify.Bus
	clock   clockwork.Clock
	logger  *zap.Logger
	cfg     Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu          sync.Mutex
	state       State
	profile     profile.Profile
	tags        []string
	partner     *profile.MatchedPartner
	saving      bool
	closed      bool
	submitTimer clockwork.Timer
	submitGen   int
	poll        *pollLoop
	liveTickers int
}

// NewMachine creates a machine in Prepare. Call Load to restore the state
// the server knows about, and Close when the view goes away.
func NewMachine(b Backend, s SessionGate, opts ...Option) *Machine {
	m := &Machine{
		backend: b,
		session: s,
		clock:   clockwork.NewRealClock(),
		logger:  zap.NewNop(),
		cfg: Config{
			SubmitDelay:  DefaultSubmitDelay,
			PollInterval: DefaultPollInterval,
		},
		state: Prepare,
	}
	for _, o := range opts {
		o(m)
	}
	if m.cfg.SubmitDelay <= 0 {
		m.cfg.SubmitDelay = DefaultSubmitDelay
	}
	if m.cfg.PollInterval <= 0 {
		m.cfg.PollInterval = DefaultPollInterval
	}
	m.ctx, m.cancel = context.WithCancel(context.Background())
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Partner returns the matched partner once Completed, nil before.
func (m *Machine) Partner() *profile.MatchedPartner {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.partner
}

// Profile returns the profile read by the last Load.
func (m *Machine) Profile() profile.Profile {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profile
}

// Tags returns a copy of the tags being edited.
func (m *Machine) Tags() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.tags)
}

// Load fetches the profile and derives the initial state from its match
// status. It never triggers a match; a "matching" user resumes polling.
func (m *Machine) Load(ctx context.Context) error {
	if !m.session.LoggedIn() {
		return session.ErrNotLoggedIn
	}

	p, err := m.backend.Profile(ctx)
	if err != nil {
		m.logger.Warn("load profile failed, dropping session", zap.Error(err))
		m.publish(notify.Notice(notify.LevelError, "Fail to load user profile, please login again"))
		if cerr := m.session.Clear(); cerr != nil {
			m.logger.Warn("clear session failed", zap.Error(cerr))
		}
		return fmt.Errorf("load profile: %w", err)
	}
	if m.cache != nil {
		if err := m.cache.SaveProfile(p); err != nil {
			m.logger.Warn("cache profile failed", zap.Error(err))
		}
	}

	status, perr := profile.ParseMatchStatus(string(p.MatchStatus))
	var partner *profile.MatchedPartner
	if perr == nil && status == profile.StatusMatched {
		partner, err = m.backend.TodayMatch(ctx)
		if err != nil {
			m.logger.Warn("fetch today's match failed", zap.Error(err))
			partner = nil
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.stopSubmitTimerLocked()
	m.profile = p
	m.tags = slices.Clone(p.Tags)
	m.partner = nil
	m.saving = false
	m.dispatchLocked(Event{Kind: Restored, Status: status, Partner: partner})
	return nil
}

// AddTag validates and appends a tag. Only allowed in Prepare.
func (m *Machine) AddTag(tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Prepare || m.saving {
		return ErrBusy
	}
	tags, err := profile.AddTag(m.tags, tag)
	if err != nil {
		return err
	}
	m.tags = tags
	return nil
}

// RemoveTag drops the tag at index i. Only allowed in Prepare.
func (m *Machine) RemoveTag(i int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Prepare || m.saving {
		return ErrBusy
	}
	tags, err := profile.RemoveTag(m.tags, i)
	if err != nil {
		return err
	}
	m.tags = tags
	return nil
}

// Submit saves the tags and starts the submit animation timer. Invalid tags
// are rejected before any backend call.
func (m *Machine) Submit(ctx context.Context) error {
	if !m.session.LoggedIn() {
		return session.ErrNotLoggedIn
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	if m.state != Prepare || m.saving {
		m.mu.Unlock()
		return ErrBusy
	}
	tags := slices.Clone(m.tags)
	if err := profile.ValidateTags(tags); err != nil {
		m.mu.Unlock()
		return err
	}
	m.saving = true
	m.mu.Unlock()

	err := m.backend.UpdateTags(ctx, tags)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.saving = false
	if err != nil {
		m.logger.Warn("save tags failed", zap.Error(err))
		m.publish(notify.Notice(notify.LevelError, "Fail to start matching: "+userMessage(err)))
		return fmt.Errorf("save tags: %w", err)
	}
	if m.closed {
		return ErrClosed
	}
	if m.state != Prepare {
		return ErrBusy
	}
	m.profile.Tags = tags
	m.dispatchLocked(Event{Kind: Submitted})
	return nil
}

// Nudge asks the running poll loop for an immediate poll, e.g. after a push
// hint. It does nothing outside Matching.
func (m *Machine) Nudge() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.poll == nil {
		return
	}
	select {
	case m.poll.nudge <- struct{}{}:
	default:
	}
}

// Close stops the submit timer and the poll loop and waits for in-flight
// backend calls to return.
func (m *Machine) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.dispatchLocked(Event{Kind: Unmounted})
	m.closed = true
	m.cancel()
	m.mu.Unlock()

	m.wg.Wait()
}

func (m *Machine) dispatch(e Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.dispatchLocked(e)
}

func (m *Machine) dispatchLocked(e Event) {
	from := m.state
	next, effects := Transition(from, e)
	m.state = next
	for _, eff := range effects {
		m.applyLocked(eff, e)
	}
	if next != from {
		m.logger.Info("match state changed",
			zap.Stringer("from", from),
			zap.Stringer("to", next),
		)
		m.publish(notify.Event{Kind: notify.KindStateChanged, From: from.String(), To: next.String()})
	}
}

func (m *Machine) applyLocked(eff Effect, e Event) {
	switch eff {
	case StartSubmitTimer:
		m.stopSubmitTimerLocked()
		m.submitGen++
		gen := m.submitGen
		m.submitTimer = m.clock.AfterFunc(m.cfg.SubmitDelay, func() { m.onSubmitDelay(gen) })

	case StopSubmitTimer:
		m.stopSubmitTimerLocked()

	case Trigger:
		m.goLocked(func(ctx context.Context) {
			if err := m.backend.TriggerMatch(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				m.logger.Warn("trigger match failed", zap.Error(err))
				m.dispatch(Event{Kind: TriggerFailed, Err: err})
				return
			}
			m.dispatch(Event{Kind: TriggerSucceeded})
		})

	case StartPolling:
		m.startPollingLocked()

	case StopPolling:
		m.stopPollingLocked()

	case StorePartner:
		m.partner = e.Partner
		m.publish(notify.Event{Kind: notify.KindPartnerFound, Partner: e.Partner})

	case NotifyError:
		msg := "Fail to start matching"
		if e.Err != nil {
			msg += ": " + userMessage(e.Err)
		}
		m.publish(notify.Notice(notify.LevelError, msg))

	case WarnStatus:
		m.logger.Warn("unexpected match status from server", zap.String("status", string(e.Status)))
		m.publish(notify.Notice(notify.LevelWarn, fmt.Sprintf("Unknown match status %q", e.Status)))
	}
}

func (m *Machine) onSubmitDelay(gen int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || gen != m.submitGen || m.submitTimer == nil {
		return
	}
	m.submitTimer = nil
	m.dispatchLocked(Event{Kind: SubmitDelayElapsed})
}

func (m *Machine) stopSubmitTimerLocked() {
	if m.submitTimer != nil {
		m.submitTimer.Stop()
		m.submitTimer = nil
	}
}

// goLocked runs fn in a goroutine tracked by Close.
func (m *Machine) goLocked(fn func(ctx context.Context)) {
	if m.closed {
		return
	}
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		fn(m.ctx)
	}()
}

// startPollingLocked arms the single poll ticker, stopping any previous one.
func (m *Machine) startPollingLocked() {
	m.stopPollingLocked()
	if m.closed {
		return
	}
	ctx, cancel := context.WithCancel(m.ctx)
	loop := &pollLoop{
		ticker: m.clock.NewTicker(m.cfg.PollInterval),
		cancel: cancel,
		nudge:  make(chan struct{}, 1),
	}
	m.poll = loop
	m.liveTickers++

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.runPoll(ctx, loop)
	}()
}

func (m *Machine) stopPollingLocked() {
	if m.poll == nil {
		return
	}
	m.poll.ticker.Stop()
	m.poll.cancel()
	m.poll = nil
	m.liveTickers--
}

func (m *Machine) runPoll(ctx context.Context, loop *pollLoop) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-loop.ticker.Chan():
		case <-loop.nudge:
		}
		m.pollOnce(ctx, loop)
	}
}

func (m *Machine) pollOnce(ctx context.Context, loop *pollLoop) {
	partner, err := m.backend.TodayMatch(ctx)
	if ctx.Err() != nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed || m.poll != loop {
		// Superseded loop; its answer must not touch the state.
		return
	}
	switch {
	case err != nil:
		m.logger.Debug("poll today's match failed", zap.Error(err))
		m.publish(notify.Notice(notify.LevelWarn, userMessage(err)))
		m.dispatchLocked(Event{Kind: PollFailed, Err: err})
	case !partner.Found():
		m.dispatchLocked(Event{Kind: PollEmpty})
	default:
		m.dispatchLocked(Event{Kind: MatchFound, Partner: partner})
	}
}

func (m *Machine) publish(evt notify.Event) {
	if m.bus != nil {
		m.bus.Publish(evt)
	}
}

func userMessage(err error) string {
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		return um.UserMessage()
	}
	return err.Error()
}
