// Package notify raises desktop notifications when the data source goes
// down and when it recovers.
package notify

import (
	"fmt"
	"sync"

	"github.com/gen2brain/beeep"

	"github.com/unklstewy/flight-display/internal/poller"
	"github.com/unklstewy/flight-display/pkg/flight"
	"github.com/unklstewy/flight-display/pkg/logger"
)

// Sender delivers one notification.
type Sender func(title, message string) error

// Desktop sends through the OS notification service.
func Desktop(title, message string) error {
	return beeep.Notify(title, message, "")
}

// Notifier tracks connection state across poll results and notifies on
// each transition between up and down.
type Notifier struct {
	send Sender
	log  logger.Logger

	mu   sync.Mutex
	down bool
}

// New creates a notifier. A nil send uses Desktop.
func New(appName string, send Sender, log logger.Logger) *Notifier {
	if send == nil {
		beeep.AppName = appName //nolint:reassign // only way to set the app name in beeep
		send = Desktop
	}
	if log == nil {
		log = logger.Nop()
	}
	return &Notifier{send: send, log: log}
}

// Wrap returns handlers that call h and then check for a transition.
func (n *Notifier) Wrap(h poller.Handlers) poller.Handlers {
	return poller.Handlers{
		OnUpdate: func(flights []flight.Record) {
			if h.OnUpdate != nil {
				h.OnUpdate(flights)
			}
			n.Recovered(len(flights))
		},
		OnError: func(msg string) {
			if h.OnError != nil {
				h.OnError(msg)
			}
			n.Failed(msg)
		},
	}
}

// Failed notifies on the first failure after a success, or at startup.
func (n *Notifier) Failed(msg string) {
	n.mu.Lock()
	if n.down {
		n.mu.Unlock()
		return
	}
	n.down = true
	n.mu.Unlock()

	n.notify("Flight data unavailable", msg)
}

// Recovered notifies on the first success after a failure.
func (n *Notifier) Recovered(flights int) {
	n.mu.Lock()
	if !n.down {
		n.mu.Unlock()
		return
	}
	n.down = false
	n.mu.Unlock()

	n.notify("Flight data restored", pluralFlights(flights))
}

func (n *Notifier) notify(title, msg string) {
	if err := n.send(title, msg); err != nil {
		n.log.Warn("Desktop notification failed", "error", err)
	}
}

func pluralFlights(n int) string {
	if n == 1 {
		return "Tracking 1 flight"
	}
	return fmt.Sprintf("Tracking %d flights", n)
}
