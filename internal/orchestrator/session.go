// File: internal/orchestrator/session.go
package orchestrator

import (
	"context"

	"github.com/xkilldash9x/serp-harvester/internal/browser"
	"github.com/xkilldash9x/serp-harvester/internal/harvest"
	"github.com/xkilldash9x/serp-harvester/internal/interceptor"
	"github.com/xkilldash9x/serp-harvester/internal/sidechannel"
)

// Page is the primary page: intercepted, searched and harvested.
type Page interface {
	interceptor.Target
	harvest.Page
}

// Session is a browser session as the orchestrator drives it.
type Session interface {
	ID() string
	Primary() Page
	OpenPage(ctx context.Context) (sidechannel.Page, error)
	Close(ctx context.Context) error
}

// Launcher opens sessions.
type Launcher interface {
	Launch(ctx context.Context) (Session, error)
}

// BrowserLauncher launches real Chrome sessions through a browser.Manager.
type BrowserLauncher struct {
	Manager *browser.Manager
}

// Launch implements Launcher.
func (l BrowserLauncher) Launch(ctx context.Context) (Session, error) {
	s, err := l.Manager.OpenSession(ctx)
	if err != nil {
		return nil, err
	}
	return browserSession{s}, nil
}

type browserSession struct {
	*browser.Session
}

func (s browserSession) Primary() Page {
	return s.Session.Page()
}

func (s browserSession) OpenPage(ctx context.Context) (sidechannel.Page, error) {
	p, err := s.Session.NewPage(ctx)
	if err != nil {
		return nil, err
	}
	return p, nil
}
