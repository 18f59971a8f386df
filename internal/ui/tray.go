// Package ui runs the Karaoke Bar system tray menu.
package ui

import (
	_ "embed"
	"fmt"
	"log/slog"
	"sync"

	"github.com/getlantern/systray"
)

//go:embed icon.png
var iconBytes []byte

type Tray struct {
	baseURL string
	logger  *slog.Logger

	statusItem *systray.MenuItem

	mu      sync.Mutex
	loading int

	openURL func(string) error
	onQuit  func()
}

type TrayConfig struct {
	// BaseURL is the address of the local web server.
	BaseURL string
	Logger  *slog.Logger
	// OpenURL opens a page in the browser. Defaults to OpenBrowser.
	OpenURL func(url string) error
	OnQuit  func()
}

func NewTray(cfg TrayConfig) *Tray {
	openURL := cfg.OpenURL
	if openURL == nil {
		openURL = OpenBrowser
	}
	return &Tray{
		baseURL: cfg.BaseURL,
		logger:  cfg.Logger,
		openURL: openURL,
		onQuit:  cfg.OnQuit,
	}
}

func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetIcon(iconBytes)
	systray.SetTitle("Karaoke Bar")
	systray.SetTooltip("Karaoke Bar")

	t.mu.Lock()
	t.statusItem = systray.AddMenuItem(statusTitle(t.loading), "Video generation status")
	t.statusItem.Disable()
	t.mu.Unlock()

	systray.AddSeparator()

	homeItem := systray.AddMenuItem("Open Karaoke Bar", "Open the upload page")
	chartsItem := systray.AddMenuItem("Open Charts", "Open the most downloaded songs")

	systray.AddSeparator()

	quitItem := systray.AddMenuItem("Quit", "Quit Karaoke Bar")

	go func() {
		for {
			select {
			case <-homeItem.ClickedCh:
				t.open("/")
			case <-chartsItem.ClickedCh:
				t.open("/charts")
			case <-quitItem.ClickedCh:
				t.logger.Info("quit requested from tray")
				if t.onQuit != nil {
					t.onQuit()
				}
				systray.Quit()
				return
			}
		}
	}()

	t.logger.Info("system tray ready")
}

func (t *Tray) onExit() {
	t.logger.Info("system tray exiting")
}

func (t *Tray) open(path string) {
	if err := t.openURL(t.baseURL + path); err != nil {
		t.logger.Error("failed to open browser", "path", path, "error", err)
	}
}

// SetLoading counts generations in flight across all pages. It is safe to
// call before the tray is ready.
func (t *Tray) SetLoading(loading bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if loading {
		t.loading++
	} else if t.loading > 0 {
		t.loading--
	}
	if t.statusItem != nil {
		t.statusItem.SetTitle(statusTitle(t.loading))
	}
}

// Loading returns the number of generations in flight.
func (t *Tray) Loading() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loading
}

func statusTitle(loading int) string {
	if loading == 0 {
		return "Status: Idle"
	}
	return fmt.Sprintf("Status: Generating (%d)", loading)
}

func (t *Tray) Quit() {
	systray.Quit()
}
