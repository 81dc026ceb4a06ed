// internal/browser/persona.go
package browser

import (
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/xkilldash9x/serp-harvester/internal/config"
)

// DefaultUserAgent is used when the configuration leaves browser.user_agent empty.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

// Persona is the identity every tab presents to the sites it visits.
type Persona struct {
	UserAgent      string
	AcceptLanguage string
	Platform       string
}

// PersonaFromConfig fills in defaults for anything the config leaves blank.
func PersonaFromConfig(cfg config.BrowserConfig) Persona {
	p := Persona{
		UserAgent:      cfg.UserAgent,
		AcceptLanguage: cfg.AcceptLanguage,
		Platform:       "Win32",
	}
	if p.UserAgent == "" {
		p.UserAgent = DefaultUserAgent
	}
	if p.AcceptLanguage == "" {
		p.AcceptLanguage = "en-US,en;q=0.9"
	}
	return p
}

// Apply returns the CDP actions that install the persona on the current tab.
func (p Persona) Apply(logger *zap.Logger) chromedp.Tasks {
	logger.Debug("Applying browser persona",
		zap.String("userAgent", p.UserAgent),
		zap.String("acceptLanguage", p.AcceptLanguage),
	)
	return chromedp.Tasks{
		emulation.SetUserAgentOverride(p.UserAgent).
			WithAcceptLanguage(p.AcceptLanguage).
			WithPlatform(p.Platform),
	}
}
