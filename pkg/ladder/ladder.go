package ladder

import (
	"context"
	"fmt"
	"time"

	"github.com/balena-os/hup-ladder/pkg/ladder/cache"
	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/balena-os/hup-ladder/pkg/platform"
	"github.com/balena-os/hup-ladder/pkg/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// DefaultPollInterval is how long the ladder waits between polls of the
	// device and after requesting an update.
	DefaultPollInterval = time.Minute * 1
	// DefaultMaxFails is the default failure budget.
	DefaultMaxFails = 10
	// DefaultStep is the default positional selection offset.
	DefaultStep = 1
)

var (
	// ErrWaitBudgetExhausted is returned when the device stayed busy or
	// offline for the whole failure budget within one iteration.
	ErrWaitBudgetExhausted = errors.New("device did not complete or come back")
	// ErrFailureBudgetExceeded is returned when too many update attempts
	// failed.
	ErrFailureBudgetExceeded = errors.New("exceeded error budget")
)

// Config is the ladder's configuration, fixed for a run.
type Config struct {
	// DeviceID is the UUID of the device to update.
	DeviceID string
	// Token authenticates with the platform.
	Token string
	// MaxFails is the failure budget shared by the wait loops of an
	// iteration and by the failed update attempts of the run.
	MaxFails int
	// Step is the offset used by positional target selection.
	Step int
	// RandomOrder picks targets at random instead of by position.
	RandomOrder bool
	// PollInterval is the fixed wait between polls.
	PollInterval time.Duration
}

func (c *Config) validate() error {
	switch {
	case c.DeviceID == "":
		return errors.New("device UUID required")
	case c.Token == "":
		return errors.New("token required")
	case c.MaxFails < 1:
		return errors.Errorf("max fails must be at least 1, got %d", c.MaxFails)
	case !c.RandomOrder && c.Step < 1:
		return errors.Errorf("step must be at least 1, got %d", c.Step)
	case c.PollInterval < 0:
		return errors.Errorf("poll interval must not be negative, got %s", c.PollInterval)
	}
	return nil
}

// Runner drives one device through successive host OS updates.
type Runner struct {
	log      logging.Logger
	platform platform.Platform
	cfg      Config

	selector Selector
	delay    Delayer
	notifier notifier

	newStatuses func() cache.LastStatus
	statuses    cache.LastStatus
}

func New(log logging.Logger, plat platform.Platform, cfg Config) (*Runner, error) {
	if plat == nil {
		return nil, errors.New("supporting platform is nil")
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if err := cfg.validate(); err != nil {
		return nil, errors.WithMessage(err, "misconfigured")
	}
	return &Runner{
		log:      log.WithField("device", cfg.DeviceID),
		platform: plat,
		cfg:      cfg,
		selector: NewSelector(cfg.RandomOrder, cfg.Step),
		delay:    timerDelay{},
		notifier: &sdNotifier{log: log.WithField(logging.SubComponentField, "notify")},

		newStatuses: cache.NewLastStatus,
	}, nil
}

// Run executes the ladder until the device has no further update (nil), the
// wait budget of an iteration is exhausted (ErrWaitBudgetExhausted), the
// failure budget is used up (ErrFailureBudgetExceeded), or another fatal error
// occurs.
func (r *Runner) Run(ctx context.Context) error {
	r.log.Info("starting HUP ladder...")
	r.notifier.Ready()
	defer r.notifier.Stopping()

	r.statuses = r.newStatuses()
	defer r.statuses.Stop()

	st, err := r.init(ctx)
	if err != nil {
		return errors.WithMessage(err, "initialization error")
	}

	for st.Failures < r.cfg.MaxFails {
		st.next()
		log := r.log.WithFields(st.fields())
		log.Debug("starting iteration")

		if err := r.awaitIdle(ctx, st); err != nil {
			return err
		}
		if err := r.awaitOnline(ctx, st); err != nil {
			return err
		}
		if st.Waits >= r.cfg.MaxFails {
			log.WithField("waits", st.Waits).Error("HUP ladder failed, device did not complete or come back")
			r.notifier.Status("failed: device did not complete or come back")
			return ErrWaitBudgetExhausted
		}

		target, err := r.computeTarget(ctx, st)
		if err != nil {
			return err
		}
		if target == "" {
			log.Info("HUP ladder completed")
			r.notifier.Status("completed")
			return nil
		}
		st.Target = target

		r.trigger(ctx, st)

		log = r.log.WithFields(st.fields())
		log.Info("Giving it a minute..")
		if err := r.delay.Delay(ctx, r.cfg.PollInterval); err != nil {
			return err
		}
		if r.updateFailed(ctx, st.Target) {
			st.Failures++
			r.log.WithFields(st.fields()).Errorf("HUP failed, retrying (failures: %d/%d)...", st.Failures, r.cfg.MaxFails)
			r.notifier.Status(fmt.Sprintf("update to %s failed (failures: %d/%d)", st.Target, st.Failures, r.cfg.MaxFails))
		}
	}

	r.log.WithFields(st.fields()).Errorf("HUP ladder exceeded error budget of %d", r.cfg.MaxFails)
	r.notifier.Status("failed: exceeded error budget")
	return ErrFailureBudgetExceeded
}

// init authenticates and collects what stays fixed for the run.
func (r *Runner) init(ctx context.Context) (*State, error) {
	if err := platform.Authenticate(ctx, r.platform, r.cfg.Token); err != nil {
		return nil, err
	}
	r.log.Debug("authenticated")

	deviceType, err := r.platform.DeviceType(ctx, r.cfg.DeviceID)
	if err != nil {
		return nil, errors.WithMessage(err, "could not get device type")
	}
	r.log.WithField("device-type", deviceType).Info("found device")
	return &State{DeviceType: deviceType}, nil
}

// wait suspends for one poll cycle, charging it to the iteration's wait
// budget.
func (r *Runner) wait(ctx context.Context, st *State) error {
	if err := r.delay.Delay(ctx, r.cfg.PollInterval); err != nil {
		return err
	}
	st.Waits++
	return nil
}

// awaitIdle polls until no update is in progress on the device.
func (r *Runner) awaitIdle(ctx context.Context, st *State) error {
	for st.Waits < r.cfg.MaxFails {
		status, err := r.platform.UpdateStatus(ctx, r.cfg.DeviceID)
		if err != nil {
			r.log.WithError(err).Warn("could not get update status")
		} else {
			r.observe(status)
			if !status.InProgress() {
				return nil
			}
			r.log.WithFields(st.fields()).Info("HUP ongoing...")
			r.notifier.Status("waiting for ongoing update")
		}
		if err := r.wait(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// awaitOnline polls until the device is connected, sharing the wait budget
// with awaitIdle.
func (r *Runner) awaitOnline(ctx context.Context, st *State) error {
	for st.Waits < r.cfg.MaxFails {
		online, err := r.platform.IsOnline(ctx, r.cfg.DeviceID)
		if err != nil {
			r.log.WithError(err).Warn("could not get device connectivity")
		} else {
			if online {
				return nil
			}
			r.log.WithFields(st.fields()).Info("Waiting for device to connect...")
			r.notifier.Status("waiting for device to connect")
		}
		if err := r.wait(ctx, st); err != nil {
			return err
		}
	}
	return nil
}

// computeTarget returns the next version to update to, or an empty string
// when the ladder is complete.
func (r *Runner) computeTarget(ctx context.Context, st *State) (string, error) {
	current, err := r.platform.OSVersion(ctx, r.cfg.DeviceID)
	if err != nil {
		return "", errors.WithMessage(err, "could not get OS version")
	}
	versions, err := r.platform.SupportedUpdateVersions(ctx, st.DeviceType, current)
	if err != nil {
		return "", errors.WithMessage(err, "could not get supported update versions")
	}

	log := r.log.WithFields(logrus.Fields{
		"current":    current,
		"candidates": len(versions),
	})
	target, ok := r.selector.Select(versions)
	if !ok {
		if len(versions) > 1 {
			log.WithField("step", r.cfg.Step).Warn("step is beyond the supported update versions")
		}
		log.Debug("no further target")
		return "", nil
	}
	log.WithField("target", target).Debug("selected target")
	return target, nil
}

// trigger requests the update to the iteration's target. Errors are logged and
// otherwise ignored; the following verification decides how the attempt went.
func (r *Runner) trigger(ctx context.Context, st *State) {
	r.log.WithFields(st.fields()).Infof("Updating %s to %s..", r.cfg.DeviceID, st.Target)
	r.notifier.Status(fmt.Sprintf("updating to %s", st.Target))
	if err := r.platform.StartOSUpdate(ctx, r.cfg.DeviceID, st.Target); err != nil {
		r.log.WithFields(st.fields()).WithError(err).Error("error while starting update")
	}
}

// updateFailed checks whether the update towards target has failed. Only a
// definite failure counts: an update still in progress or a status that could
// not be fetched is not a failure.
func (r *Runner) updateFailed(ctx context.Context, target string) bool {
	log := r.log.WithField("target", target)

	status, err := r.platform.UpdateStatus(ctx, r.cfg.DeviceID)
	if err != nil {
		log.WithError(err).Error("error while getting status")
		return false
	}
	r.observe(status)

	switch {
	case status.Failed():
		log.WithFields(logrus.Fields{
			"status": status.Status,
			"fatal":  status.Fatal,
			"error":  status.Error,
		}).Warn("HUP reported failure")
		return true
	case status.Status == platform.StatusDone:
		current, err := r.platform.OSVersion(ctx, r.cfg.DeviceID)
		if err != nil {
			log.WithError(err).Error("error while getting status")
			return false
		}
		notReached, err := version.GreaterThan(target, current)
		if err != nil {
			log.WithError(err).Error("error while getting status")
			return false
		}
		if notReached {
			log.Infof("HUP done but not completed: target %s, current: %s", target, current)
			return true
		}
	}
	return false
}

// observe logs update status transitions of the device.
func (r *Runner) observe(status *platform.UpdateStatus) {
	if r.statuses == nil {
		return
	}
	last := r.statuses.Last(r.cfg.DeviceID)
	r.statuses.Record(r.cfg.DeviceID, status)
	log := r.log.WithFields(logrus.Fields{
		"status": status.Status,
		"fatal":  status.Fatal,
	})
	if !cache.Changed(last, status) {
		log.Debug("update status unchanged")
		return
	}
	if last != nil {
		log = log.WithField("previous", last.Status)
	}
	log.Info("update status changed")
}
