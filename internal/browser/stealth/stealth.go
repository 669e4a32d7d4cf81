// File: internal/browser/stealth/stealth.go
package stealth

import (
	"context"
	_ "embed" // Required for the go:embed directive
	"encoding/json"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

//go:embed evasions.js
var evasionsScript string

// ScreenProperties defines the resolution reported to the page.
type ScreenProperties struct {
	Width            int64   `json:"width"`
	Height           int64   `json:"height"`
	DevicePixelRatio float64 `json:"devicePixelRatio,omitempty"`
}

// Persona defines a consistent browser profile to be spoofed.
type Persona struct {
	UserAgent string           `json:"userAgent"`
	Platform  string           `json:"platform"`
	Languages []string         `json:"languages"`
	Screen    ScreenProperties `json:"screen"`
}

// Default returns the stock desktop-Chrome persona sized to the given viewport.
func Default(width, height int64) Persona {
	return Persona{
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36",
		Platform:  "Win32",
		Languages: []string{"en-US", "en"},
		Screen:    ScreenProperties{Width: width, Height: height, DevicePixelRatio: 1.0},
	}
}

// Apply orchestrates the stealth actions using chromedp.Tasks for sequential execution.
func Apply(persona Persona, logger *zap.Logger) chromedp.Action {
	l := logger.Named("stealth")
	return chromedp.Tasks{
		network.Enable(),
		setAcceptLanguage(persona),
		setUserAgent(persona, l),
		setDeviceMetrics(persona, l),
		injectEvasionScript(persona, l),
		page.SetWebLifecycleState(page.SetWebLifecycleStateStateActive),
		chromedp.ActionFunc(func(ctx context.Context) error {
			l.Debug("Stealth profile applied", zap.String("user_agent", persona.UserAgent))
			return nil
		}),
	}
}

// injectEvasionScript registers the JS evasions to run before any page script
// on every new document.
func injectEvasionScript(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		personaJSON, err := json.Marshal(persona)
		if err != nil {
			return fmt.Errorf("stealth: failed to marshal persona: %w", err)
		}

		script := fmt.Sprintf("const PROXYLITE_PERSONA = %s;\n%s", string(personaJSON), evasionsScript)
		if _, err = page.AddScriptToEvaluateOnNewDocument(script).Do(ctx); err != nil {
			logger.Error("Failed to register evasion script with CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to add script on new document: %w", err)
		}
		return nil
	})
}

func setUserAgent(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		err := emulation.SetUserAgentOverride(persona.UserAgent).
			WithPlatform(persona.Platform).
			WithAcceptLanguage(strings.Join(persona.Languages, ",")).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set user agent override via CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to set user agent override: %w", err)
		}
		return nil
	})
}

func setAcceptLanguage(persona Persona) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if len(persona.Languages) == 0 {
			return nil
		}
		formatted := persona.Languages[0]
		for i := 1; i < len(persona.Languages); i++ {
			q := 1.0 - float64(i)*0.1
			if q < 0.7 {
				q = 0.7
			}
			formatted += fmt.Sprintf(",%s;q=%.1f", persona.Languages[i], q)
		}
		headers := map[string]interface{}{"Accept-Language": formatted}
		if err := network.SetExtraHTTPHeaders(network.Headers(headers)).Do(ctx); err != nil {
			return fmt.Errorf("stealth: failed to set extra http headers: %w", err)
		}
		return nil
	})
}

func setDeviceMetrics(persona Persona, logger *zap.Logger) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if persona.Screen.Width <= 0 || persona.Screen.Height <= 0 {
			return nil
		}
		orientation := emulation.OrientationTypeLandscapePrimary
		if persona.Screen.Height > persona.Screen.Width {
			orientation = emulation.OrientationTypePortraitPrimary
		}
		ratio := persona.Screen.DevicePixelRatio
		if ratio == 0 {
			ratio = 1.0
		}
		err := emulation.SetDeviceMetricsOverride(persona.Screen.Width, persona.Screen.Height, ratio, false).
			WithScreenOrientation(&emulation.ScreenOrientation{Type: orientation, Angle: 0}).
			Do(ctx)
		if err != nil {
			logger.Error("Failed to set device metrics override via CDP", zap.Error(err))
			return fmt.Errorf("stealth: failed to set device metrics: %w", err)
		}
		return nil
	})
}
