// internal/browser/manager.go
package browser

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"

	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/config"
)

// Manager launches isolated browser processes, one per session, and keeps
// track of them so they can all be torn down on shutdown.
type Manager struct {
	cfg     config.BrowserConfig
	logger  *zap.Logger
	persona Persona

	mu       sync.Mutex
	sessions map[string]*Session
	wg       sync.WaitGroup
}

// NewManager creates a manager. No browser is started until OpenSession.
func NewManager(cfg config.BrowserConfig, logger *zap.Logger) *Manager {
	return &Manager{
		cfg:      cfg,
		logger:   logger.Named("browser_manager"),
		persona:  PersonaFromConfig(cfg),
		sessions: make(map[string]*Session),
	}
}

// AllocatorOptions assembles the Chrome command line for a session.
func (m *Manager) AllocatorOptions() []chromedp.ExecAllocatorOption {
	var opts []chromedp.ExecAllocatorOption
	for _, opt := range chromedp.DefaultExecAllocatorOptions {
		opts = append(opts, opt)
	}

	opts = append(opts,
		chromedp.Flag("headless", m.cfg.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(m.cfg.WindowWidth, m.cfg.WindowHeight),
		chromedp.UserAgent(m.persona.UserAgent),
	)
	if m.cfg.ChromePath != "" {
		opts = append(opts, chromedp.ExecPath(m.cfg.ChromePath))
	}
	if runtime.GOOS == "linux" {
		opts = append(opts,
			chromedp.Flag("disable-dev-shm-usage", true),
			chromedp.Flag("disable-setuid-sandbox", true),
		)
	}

	// Extra flags from config, "--name=value" or "--name".
	for _, arg := range m.cfg.Args {
		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if name == "" {
			continue
		}
		if hasValue {
			opts = append(opts, chromedp.Flag(name, value))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// OpenSession starts a fresh browser process and returns a session whose
// primary page is ready for use. The browser outlives ctx; only Close or
// Shutdown ends it. Failures are reported as *LaunchError.
func (m *Manager) OpenSession(ctx context.Context) (*Session, error) {
	id := uuid.NewString()
	logger := m.logger.With(zap.String("session_id", id))
	logger.Info("Launching browser.", zap.Bool("headless", m.cfg.Headless))

	// 1. Build the allocator. It is detached from ctx so that a request
	// ending does not take the browser process with it.
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.WithoutCancel(ctx), m.AllocatorOptions()...)
	sugar := logger.Named("cdp").Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(sugar.Debugf),
		chromedp.WithErrorf(sugar.Debugf),
	)

	// 2. Start Chrome, bounded by the launch timeout.
	launchCtx, cancelLaunch := context.WithTimeout(ctx, m.cfg.LaunchTimeout)
	defer cancelLaunch()

	if err := attach(launchCtx, browserCtx, browserCancel); err != nil {
		browserCancel()
		allocCancel()
		return nil, &LaunchError{Err: err}
	}

	// 3. The browser's first tab becomes the primary page, with the persona
	// applied before it loads anything.
	primary := newPage(browserCtx, nil, m.cfg.NavigationTimeout, logger.Named("page"))
	if err := primary.Run(launchCtx, m.persona.Apply(logger)); err != nil {
		browserCancel()
		allocCancel()
		return nil, &LaunchError{Err: fmt.Errorf("applying persona: %w", err)}
	}

	s := &Session{
		id:            id,
		cfg:           m.cfg,
		logger:        logger,
		persona:       m.persona,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		primary:       primary,
	}
	s.onClose = func() { m.release(id) }

	// 4. Track the session so Shutdown can reclaim it.
	m.mu.Lock()
	m.sessions[id] = s
	m.wg.Add(1)
	m.mu.Unlock()

	logger.Info("Browser session ready.")
	return s, nil
}

func (m *Manager) release(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[id]; ok {
		delete(m.sessions, id)
		m.wg.Done()
	}
}

// Active reports the number of sessions that have not been closed yet.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Shutdown waits for open sessions to finish, force-closing whatever is
// still open once ctx is done.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Browser manager shutdown initiated.", zap.Int("active_sessions", m.Active()))

	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		m.logger.Info("All browser sessions have completed.")
		return nil
	case <-ctx.Done():
		m.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	m.mu.Lock()
	open := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		open = append(open, s)
	}
	m.mu.Unlock()

	for _, s := range open {
		// ctx is already done; give each close its own budget.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.cfg.ShutdownTimeout)
		if err := s.Close(closeCtx); err != nil {
			m.logger.Warn("Forced session close reported an error.", zap.String("session_id", s.ID()), zap.Error(err))
		}
		cancel()
	}
	<-done
	return ctx.Err()
}
