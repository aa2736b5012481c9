// Package notify surfaces user-facing alerts as desktop notifications.
package notify

import (
	"github.com/gen2brain/beeep"
	zlog "github.com/rs/zerolog/log"
)

// Toaster shows desktop alerts. A failed notification degrades to a log
// line so the caller never has to care.
type Toaster struct{}

// NewToaster creates the notifier.
func NewToaster() *Toaster {
	return &Toaster{}
}

// Error shows an error alert to the user.
func (t *Toaster) Error(title, message string) {
	zlog.Warn().Msgf("notify: %s: %s", title, message)
	if err := beeep.Alert(title, message, ""); err != nil {
		zlog.Debug().Msgf("notify: alert failed: %v", err)
	}
}

// Info shows an informational toast.
func (t *Toaster) Info(title, message string) {
	zlog.Info().Msgf("notify: %s: %s", title, message)
	if err := beeep.Notify(title, message, ""); err != nil {
		zlog.Debug().Msgf("notify: notification failed: %v", err)
	}
}
