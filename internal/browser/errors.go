// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrPageClosed is returned by operations on a page whose target is gone.
	ErrPageClosed = errors.New("page is closed")
	// ErrEmptyURL is returned when asked to navigate nowhere.
	ErrEmptyURL = errors.New("empty navigation url")
	// ErrSessionClosed is returned when opening pages on a closed session.
	ErrSessionClosed = errors.New("browser session is closed")
)

// LaunchError reports that the browser process could not be started or
// did not become responsive in time.
type LaunchError struct {
	Err error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("browser launch failed: %v", e.Err)
}

func (e *LaunchError) Unwrap() error { return e.Err }

// NavigationError reports a navigation that failed or never reached its
// load milestone.
type NavigationError struct {
	URL       string
	Milestone LoadMilestone
	Err       error
}

func (e *NavigationError) Error() string {
	if e.URL == "" {
		return fmt.Sprintf("navigation (%s) failed: %v", e.Milestone, e.Err)
	}
	return fmt.Sprintf("navigation to %q (%s) failed: %v", e.URL, e.Milestone, e.Err)
}

func (e *NavigationError) Unwrap() error { return e.Err }
