package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mattjoyce/unitd/internal/events"
	"github.com/mattjoyce/unitd/internal/host"
	"github.com/mattjoyce/unitd/internal/log"
	"github.com/mattjoyce/unitd/internal/manifest"
	"github.com/mattjoyce/unitd/internal/metrics"
	"github.com/mattjoyce/unitd/internal/output"
	"github.com/mattjoyce/unitd/internal/process"
)

const (
	// inboxSize bounds the number of queued inputs before Deliver blocks.
	inboxSize = 1024

	defaultCols = 80
	defaultRows = 24
)

// Config configures a Session.
type Config struct {
	// ID identifies the session in logs, events and the journal. A random
	// id is generated when empty.
	ID string
	// Prefix tags unit output and keystrokes, and names the root unit.
	Prefix string
	// RootArgs is the root unit's argv; RootArgs[0] is its executable.
	RootArgs []string
	// Allowlist restricts spawnable executables when non-nil.
	Allowlist []string
	Rewriter  manifest.Rewriter
	// Cols and Rows size units launched before the first resize.
	Cols, Rows int
	AltHTTP    bool
	// WaitTimeout answers queued waits with -EAGAIN after this long.
	// Zero keeps waits queued until a matching exit.
	WaitTimeout time.Duration
	// OnExit is called once with the root unit's status.
	OnExit func(code int)
}

// Session is the process lifecycle manager for one unit tree.
type Session struct {
	cfg     Config
	host    host.Host
	hub     *events.Hub
	metrics *metrics.Metrics
	logger  *slog.Logger

	inbox   chan func()
	stopped chan struct{}
	stop    sync.Once

	mu       sync.Mutex
	ctx      context.Context
	table    *process.Table
	fg       *process.Router
	mux      *output.Mux
	progress output.Progress
	units    map[int]host.Unit
	digests  map[int]string
	pending  *ledger
	cols     int
	rows     int
	started  bool
	launched bool
	finished bool
	after    []func()
}

// New creates a session printing to display. hub and m may be nil.
func New(cfg Config, h host.Host, display output.Display, hub *events.Hub, m *metrics.Metrics) *Session {
	if cfg.ID == "" {
		cfg.ID = uuid.NewString()
	}
	if cfg.Cols <= 0 {
		cfg.Cols = defaultCols
	}
	if cfg.Rows <= 0 {
		cfg.Rows = defaultRows
	}
	table := process.NewTable()
	return &Session{
		cfg:     cfg,
		host:    h,
		hub:     hub,
		metrics: m,
		logger:  log.WithSession(cfg.ID).With("component", "dispatch"),
		inbox:   make(chan func(), inboxSize),
		stopped: make(chan struct{}),
		ctx:     context.Background(),
		table:   table,
		fg:      process.NewRouter(table),
		mux:     output.NewMux(display),
		units:   make(map[int]host.Unit),
		digests: make(map[int]string),
		pending: newLedger(),
		cols:    cfg.Cols,
		rows:    cfg.Rows,
	}
}

// ID returns the session id.
func (s *Session) ID() string {
	return s.cfg.ID
}

// Run applies queued inputs one at a time until ctx is cancelled. It is a
// blocking call.
func (s *Session) Run(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.logger.Info("session loop started")
	defer s.logger.Info("session loop stopped")
	defer s.stop.Do(func() { close(s.stopped) })

	var sweep <-chan time.Time
	if s.cfg.WaitTimeout > 0 {
		interval := s.cfg.WaitTimeout / 2
		if interval < 10*time.Millisecond {
			interval = 10 * time.Millisecond
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		sweep = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case fn := <-s.inbox:
			s.apply(fn)
		case now := <-sweep:
			s.apply(func() { s.expireWaiters(now) })
		}
	}
}

// apply runs fn under the session lock, then any callbacks it scheduled.
func (s *Session) apply(fn func()) {
	s.mu.Lock()
	fn()
	after := s.after
	s.after = nil
	s.mu.Unlock()

	for _, f := range after {
		f()
	}
}

// enqueue hands fn to Run. Inputs arriving after Run returned are dropped.
func (s *Session) enqueue(fn func()) {
	select {
	case s.inbox <- fn:
	case <-s.stopped:
	}
}

// Deliver implements host.Sink. Events are applied by Run in arrival order.
func (s *Session) Deliver(ev host.Event) {
	s.enqueue(func() { s.handleEvent(ev) })
}

// Handle applies ev synchronously.
func (s *Session) Handle(ev host.Event) {
	s.apply(func() { s.handleEvent(ev) })
}

// Resize records the terminal size. The first call launches the root unit;
// later calls notify the foreground unit.
func (s *Session) Resize(cols, rows int) {
	s.enqueue(func() { s.resize(cols, rows) })
}

// Keystroke forwards keys to the foreground unit.
func (s *Session) Keystroke(keys string) {
	s.enqueue(func() { s.keystroke(keys) })
}

// Sync returns once every input queued before it has been applied.
func (s *Session) Sync() {
	done := make(chan struct{})
	s.enqueue(func() {
		s.after = append(s.after, func() { close(done) })
	})
	select {
	case <-done:
	case <-s.stopped:
	}
}

// Snapshot returns the process table ordered by pid.
func (s *Session) Snapshot() []process.Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Snapshot()
}

// Foreground returns the pid owning interactive input, or 0.
func (s *Session) Foreground() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fg.Current()
}

// Counts returns the running and zombie unit counts.
func (s *Session) Counts() (running, zombies int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Counts()
}

// PendingWaits returns the number of queued wait requests.
func (s *Session) PendingWaits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.table.Waiters().Total()
}

// Finished reports whether the root unit has terminated.
func (s *Session) Finished() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.finished
}

func (s *Session) publish(eventType string, ev events.UnitEvent) {
	if s.hub == nil {
		return
	}
	ev.SessionID = s.cfg.ID
	s.hub.Publish(eventType, ev)
}

func (s *Session) updateGauges() {
	s.metrics.SetTable(s.table.Counts())
}

func (s *Session) print(text string) {
	s.mux.Print(text)
}
