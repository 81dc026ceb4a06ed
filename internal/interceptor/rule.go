// Package interceptor decides the fate of every request a page issues:
// static assets are aborted, the first request whose URL carries the
// match substring is recorded, everything else goes through untouched.
package interceptor

import (
	"strings"

	"github.com/chromedp/cdproto/network"
)

// DefaultMatchSubstring identifies the request whose URL the side-channel fetch replays.
const DefaultMatchSubstring = "bgasy"

// Action is the decision taken for a single intercepted request.
type Action int

const (
	// ActionContinue lets the request proceed unchanged.
	ActionContinue Action = iota
	// ActionAbort fails the request before it leaves the browser.
	ActionAbort
	// ActionMatch continues the request and reports its URL as a match candidate.
	ActionMatch
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionAbort:
		return "abort"
	case ActionMatch:
		return "match"
	default:
		return "unknown"
	}
}

// blocked lists the resource types that never reach the network.
var blocked = map[network.ResourceType]struct{}{
	network.ResourceTypeFont:       {},
	network.ResourceTypeImage:      {},
	network.ResourceTypeStylesheet: {},
}

// Rule classifies requests.
type Rule struct {
	MatchSubstring string
}

// Classify returns the action for a request. Resource type wins over URL:
// a blocked asset whose URL contains the substring is still aborted.
func (r Rule) Classify(rt network.ResourceType, url string) Action {
	if _, ok := blocked[rt]; ok {
		return ActionAbort
	}
	if r.MatchSubstring != "" && strings.Contains(url, r.MatchSubstring) {
		return ActionMatch
	}
	return ActionContinue
}

// Classify applies the default rule.
func Classify(rt network.ResourceType, url string) Action {
	return Rule{MatchSubstring: DefaultMatchSubstring}.Classify(rt, url)
}
