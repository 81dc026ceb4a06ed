// File: internal/orchestrator/orchestrator.go
// Description: Drives one scrape from browser launch to teardown. Every
// collaborator is injected so the state machine can run against fakes.

package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/serp-harvester/internal/config"
	"github.com/xkilldash9x/serp-harvester/internal/harvest"
	"github.com/xkilldash9x/serp-harvester/internal/interceptor"
	"github.com/xkilldash9x/serp-harvester/internal/search"
	"github.com/xkilldash9x/serp-harvester/internal/sidechannel"
)

// ErrHarvestFailed wraps a harvest that could not reach every requested page.
var ErrHarvestFailed = errors.New("harvest failed")

// State is a step of a run.
type State int

const (
	// StateInit is entered when a run starts, before any browser exists.
	StateInit State = iota
	// StateSessionOpen means the browser and its primary page are up.
	StateSessionOpen
	// StateInterceptAndSearch covers installing the interceptor and the
	// first search on the primary page.
	StateInterceptAndSearch
	// StateRace runs the side-channel fetch and the harvest side by side.
	StateRace
	// StateFollowUpSearch searches for the side-channel body's first word,
	// when there is one.
	StateFollowUpSearch
	// StateClosed is entered once the session is torn down. Every run that
	// opened a session ends here.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "INIT"
	case StateSessionOpen:
		return "SESSION_OPEN"
	case StateInterceptAndSearch:
		return "INTERCEPT_AND_SEARCH"
	case StateRace:
		return "RACE"
	case StateFollowUpSearch:
		return "FOLLOWUP_SEARCH"
	case StateClosed:
		return "CLOSED"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Result is the outcome of one run.
type Result struct {
	RunID    string
	Articles []harvest.Article
	// SideChannel is the fetched body, FetchFailed, or "" if the leg failed.
	SideChannel    string
	SideChannelErr error
	// FollowUpTerm is the term searched after the race, "" if none was.
	FollowUpTerm string
	States       []State
}

// Orchestrator runs scrapes.
type Orchestrator struct {
	cfg         *config.Config
	launcher    Launcher
	logger      *zap.Logger
	interceptor *interceptor.Interceptor
	navigator   *search.Navigator
	harvester   *harvest.Harvester
	fetcher     *sidechannel.Fetcher
}

// New creates an Orchestrator.
func New(cfg *config.Config, launcher Launcher, logger *zap.Logger) (*Orchestrator, error) {
	if cfg == nil || launcher == nil || logger == nil {
		return nil, fmt.Errorf("cannot initialize orchestrator with nil dependencies")
	}
	logger = logger.Named("orchestrator")
	return &Orchestrator{
		cfg:         cfg,
		launcher:    launcher,
		logger:      logger,
		interceptor: interceptor.New(interceptor.Rule{MatchSubstring: cfg.Interception.MatchSubstring}, logger),
		navigator:   search.NewNavigator(cfg.Search.BaseURL, logger),
		harvester:   harvest.New(logger),
		fetcher:     sidechannel.NewFetcher(cfg.SideChannel.TrustedOrigin, logger),
	}, nil
}

// Run searches for keyword, harvests maxPageNumber result pages and
// returns the articles found.
//
// A run moves through the State values in order:
//  1. Launch a browser session. This is the only step whose failure ends
//     the run before any work is done.
//  2. Install the interceptor on the primary page, then issue the first
//     search. Interception must precede the navigation or its requests go
//     unseen. Neither failure is fatal; both are logged.
//  3. Run two legs concurrently and wait for both. The fetch leg waits for
//     the intercepted URL (bounded by interception.match_timeout) and
//     replays it from a second tab. The harvest leg reads the results
//     already loaded in the primary page, then walks the next pages. The
//     legs never touch the same page, and neither cancels the other.
//  4. If the fetch leg produced a body, search again for its first word.
//  5. Close the session. This is deferred and runs on every path, even
//     when ctx is already done.
//
// The error is non-nil when the session could not be opened or the harvest
// could not reach every requested page (ErrHarvestFailed). In the latter
// case the result still carries the articles gathered.
func (o *Orchestrator) Run(ctx context.Context, keyword string, maxPageNumber int) (*Result, error) {
	if maxPageNumber < 1 {
		return nil, fmt.Errorf("%w: got %d", harvest.ErrInvalidPageCount, maxPageNumber)
	}

	res := &Result{RunID: uuid.NewString(), Articles: []harvest.Article{}}
	log := o.logger.With(zap.String("run_id", res.RunID))
	enter := func(s State) {
		res.States = append(res.States, s)
		log.Debug("Entering state.", zap.Stringer("state", s))
	}

	enter(StateInit)
	log.Info("Starting run.", zap.String("keyword", keyword), zap.Int("pages", maxPageNumber))

	session, err := o.launcher.Launch(ctx)
	if err != nil {
		log.Error("Could not open a browser session.", zap.Error(err))
		return res, fmt.Errorf("opening browser session: %w", err)
	}
	enter(StateSessionOpen)

	defer func() {
		// The session must go even when ctx is already done.
		closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.cfg.Browser.ShutdownTimeout)
		defer cancel()
		log.Info("Closing the browser.")
		if err := session.Close(closeCtx); err != nil {
			log.Warn("Browser session did not close cleanly.", zap.Error(err))
		}
		enter(StateClosed)
	}()

	enter(StateInterceptAndSearch)
	page := session.Primary()
	// Installed strictly before the first navigation, or its requests go unseen.
	match, installErr := o.interceptor.Install(ctx, page)
	if installErr != nil {
		log.Warn("Request interception unavailable.", zap.Error(installErr))
	}
	if err := o.navigator.Search(ctx, page, keyword); err != nil {
		log.Warn("Initial search failed.", zap.Error(err))
	}

	enter(StateRace)
	var (
		g          errgroup.Group
		body       string
		fetchErr   error
		articles   []harvest.Article
		harvestErr error
	)
	g.Go(func() error {
		if installErr != nil {
			fetchErr = installErr
			return nil
		}
		body, fetchErr = o.fetchLeg(ctx, session, match, log)
		return nil
	})
	g.Go(func() error {
		articles, harvestErr = o.harvester.Harvest(ctx, page, maxPageNumber)
		return nil
	})
	_ = g.Wait()

	res.Articles = append(res.Articles, articles...)
	res.SideChannel, res.SideChannelErr = body, fetchErr
	if harvestErr != nil {
		log.Error("Harvest failed.", zap.Int("articles", len(res.Articles)), zap.Error(harvestErr))
	}

	enter(StateFollowUpSearch)
	switch {
	case fetchErr != nil:
		log.Warn("Side-channel fetch failed; skipping follow-up search.", zap.Error(fetchErr))
	case body == sidechannel.FetchFailed:
		log.Warn("Side-channel fetch returned FETCH_FAILED; skipping follow-up search.")
	default:
		term := search.FirstWord(body)
		if term == "" {
			log.Warn("Side-channel body has no leading word; skipping follow-up search.")
			break
		}
		res.FollowUpTerm = term
		if err := o.navigator.Search(ctx, page, term); err != nil {
			log.Warn("Follow-up search failed.", zap.String("term", term), zap.Error(err))
		}
	}

	if harvestErr != nil {
		return res, fmt.Errorf("%w: %w", ErrHarvestFailed, harvestErr)
	}
	log.Info("Run complete.", zap.Int("articles", len(res.Articles)))
	return res, nil
}

// fetchLeg waits for the intercepted URL, then replays it from a new page.
func (o *Orchestrator) fetchLeg(ctx context.Context, session Session, match *interceptor.Match, log *zap.Logger) (string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, o.cfg.Interception.MatchTimeout)
	url, err := match.Await(waitCtx)
	cancel()
	if err != nil {
		return "", err
	}
	log.Debug("Side-channel URL captured.", zap.String("url", url))
	return o.fetcher.Fetch(ctx, session.OpenPage, url)
}
