package platform

import (
	"context"

	"github.com/pkg/errors"
)

// ErrNotLoggedIn is returned when a session could not be established with the
// provided credentials.
var ErrNotLoggedIn = errors.New("authentication error: not logged in")

// Platform is implemented by device management backends able to update a
// device's host OS remotely.
type Platform interface {
	// LoginWithToken sets up the session to act with the given token.
	LoginWithToken(ctx context.Context, token string) error
	// IsLoggedIn reports whether the current session is authenticated.
	IsLoggedIn(ctx context.Context) (bool, error)
	// DeviceType returns the device type slug of the device.
	DeviceType(ctx context.Context, uuid string) (string, error)
	// OSVersion returns the device's current host OS version.
	OSVersion(ctx context.Context, uuid string) (string, error)
	// SupportedUpdateVersions lists the host OS versions the device type can
	// be updated to from current. The list MUST be ordered newest first.
	SupportedUpdateVersions(ctx context.Context, deviceType, current string) ([]string, error)
	// UpdateStatus reports the progress of the device's latest host OS
	// update.
	UpdateStatus(ctx context.Context, uuid string) (*UpdateStatus, error)
	// IsOnline reports whether the device is connected.
	IsOnline(ctx context.Context, uuid string) (bool, error)
	// StartOSUpdate requests the device to update its host OS to target.
	StartOSUpdate(ctx context.Context, uuid, target string) error
}

// Status is the state of a host OS update.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// UpdateStatus is a snapshot of a device's host OS update progress.
type UpdateStatus struct {
	Status Status
	// Fatal is set when the update failed in a way that cannot be recovered
	// on the device.
	Fatal bool
	// Target is the version the update was requested for, if known.
	Target string
	// Error carries the failure reported by the device, if any.
	Error string
}

// InProgress reports whether an update is currently running.
func (s *UpdateStatus) InProgress() bool {
	return s != nil && s.Status == StatusInProgress
}

// Failed reports whether the update ended in error.
func (s *UpdateStatus) Failed() bool {
	return s != nil && (s.Status == StatusError || s.Fatal)
}

// Authenticate logs in with token and confirms the resulting session before
// returning. Platform consumers should use this rather than LoginWithToken
// alone so that no work starts before the session is known to be valid.
func Authenticate(ctx context.Context, p Platform, token string) error {
	if token == "" {
		return errors.New("token required")
	}
	if err := p.LoginWithToken(ctx, token); err != nil {
		return errors.WithMessage(err, "could not log in with token")
	}
	ok, err := p.IsLoggedIn(ctx)
	if err != nil {
		return errors.WithMessage(err, "could not verify session")
	}
	if !ok {
		return ErrNotLoggedIn
	}
	return nil
}
