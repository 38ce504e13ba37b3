package ladder

import (
	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/coreos/go-systemd/v22/daemon"
)

// notifier publishes the ladder's progress to the service manager.
type notifier interface {
	Ready()
	Status(string)
	Stopping()
}

// sdNotifier reports to systemd when run as a notify service. Outside of
// systemd every call is a no-op.
type sdNotifier struct {
	log logging.Logger
}

func (n *sdNotifier) Ready() {
	n.notify(daemon.SdNotifyReady)
}

func (n *sdNotifier) Status(status string) {
	n.notify("STATUS=" + status)
}

func (n *sdNotifier) Stopping() {
	n.notify(daemon.SdNotifyStopping)
}

func (n *sdNotifier) notify(state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil {
		n.log.WithError(err).Debug("could not notify service manager")
		return
	}
	if sent && logging.Debuggable {
		n.log.WithField("state", state).Debug("notified service manager")
	}
}
