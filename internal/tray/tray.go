// Package tray provides a system tray interface for the Libra app.
package tray

import (
	"sync"

	"github.com/getlantern/systray"
)

// Tray represents the system tray application.
type Tray struct {
	onLoadModel func()
	onRun       func()
	onQuit      func()
	status      string
	mu          sync.RWMutex

	// Menu items stored for later updates
	menuStatus *systray.MenuItem
	menuRun    *systray.MenuItem
}

// New creates a new Tray instance.
func New() *Tray {
	return &Tray{status: "Idle"}
}

// OnLoadModel sets the callback invoked by the "Load model" item.
func (t *Tray) OnLoadModel(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onLoadModel = fn
}

// OnRunInference sets the callback invoked by the "Run inference" item.
func (t *Tray) OnRunInference(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onRun = fn
}

// OnQuit sets the callback function to be called when the quit menu item is clicked.
func (t *Tray) OnQuit(fn func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onQuit = fn
}

// Run starts the system tray application.
// This function blocks until systray.Quit() is called.
func (t *Tray) Run() {
	systray.Run(t.onReady, t.onExit)
}

func (t *Tray) onReady() {
	systray.SetTitle("Libra")
	systray.SetTooltip("Libra camera and inference")

	t.mu.Lock()
	t.menuStatus = systray.AddMenuItem(t.status, "Last status message")
	t.menuStatus.Disable()
	t.mu.Unlock()
	systray.AddSeparator()

	menuLoad := systray.AddMenuItem("Load model", "Create an inference session")
	t.menuRun = systray.AddMenuItem("Run inference", "Run the session on a dummy input")
	systray.AddSeparator()

	menuQuit := systray.AddMenuItem("Quit", "Quit Libra")

	go func() {
		for {
			select {
			case <-menuLoad.ClickedCh:
				t.invoke(func() func() { return t.onLoadModel })
			case <-t.menuRun.ClickedCh:
				t.invoke(func() func() { return t.onRun })
			case <-menuQuit.ClickedCh:
				t.handleQuit()
				return
			}
		}
	}()
}

func (t *Tray) onExit() {}

// invoke reads a callback under the lock and calls it outside the lock.
func (t *Tray) invoke(get func() func()) {
	t.mu.RLock()
	callback := get()
	t.mu.RUnlock()

	if callback != nil {
		callback()
	}
}

func (t *Tray) handleQuit() {
	t.invoke(func() func() { return t.onQuit })
	systray.Quit()
}

// SetStatus updates the status line in the menu.
func (t *Tray) SetStatus(msg string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg == "" {
		msg = "Idle"
	}
	t.status = msg
	if t.menuStatus != nil {
		t.menuStatus.SetTitle(msg)
	}
}

// Status returns the last status message.
func (t *Tray) Status() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.status
}

// Quit stops the tray loop started by Run.
func (t *Tray) Quit() {
	systray.Quit()
}
