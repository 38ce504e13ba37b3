package balena

import (
	"context"
	"net/http"
	"sort"

	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/balena-os/hup-ladder/pkg/platform"
	"github.com/balena-os/hup-ladder/pkg/version"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	defaultRequestsPerSecond = 5
	defaultBurst             = 5
)

// Assert Platform as a platform implementor.
var _ platform.Platform = (*Platform)(nil)

// Config selects the endpoints and transport used to reach balena.
type Config struct {
	// Staging selects the staging environment when the URLs are not given.
	Staging bool
	// APIURL overrides the API base URL.
	APIURL string
	// ActionsURL overrides the actions service base URL.
	ActionsURL string
	// HTTPClient is used for all requests, http.DefaultClient when nil.
	HTTPClient *http.Client
	// RequestsPerSecond paces requests, defaulting to 5 per second.
	RequestsPerSecond float64
}

// Platform drives host OS updates through the balena API.
type Platform struct {
	log logging.Logger
	api api
}

func New(log logging.Logger, cfg Config) (*Platform, error) {
	apiURL, actionsURL := Endpoints(cfg.Staging)
	if cfg.APIURL != "" {
		apiURL = cfg.APIURL
	}
	if cfg.ActionsURL != "" {
		actionsURL = cfg.ActionsURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = defaultRequestsPerSecond
	}

	log.WithFields(logrus.Fields{
		"api":     apiURL,
		"actions": actionsURL,
	}).Debug("using endpoints")

	limiter := rate.NewLimiter(rate.Limit(rps), defaultBurst)
	return &Platform{
		log: log,
		api: newClient(log.WithField(logging.SubComponentField, "api"), httpClient, limiter, apiURL, actionsURL),
	}, nil
}

// LoginWithToken sets up the session to act with the given token. The token
// is not checked until the session is used.
func (p *Platform) LoginWithToken(_ context.Context, token string) error {
	if token == "" {
		return errors.New("empty token")
	}
	p.api.SetToken(token)
	return nil
}

// IsLoggedIn reports whether the API accepts the session's token.
func (p *Platform) IsLoggedIn(ctx context.Context) (bool, error) {
	a, err := p.api.Whoami(ctx)
	if err != nil {
		if isStatus(err, http.StatusUnauthorized) {
			return false, nil
		}
		return false, err
	}
	p.log.WithFields(logrus.Fields{
		"actor": a.ID,
		"type":  a.ActorType,
	}).Debug("session verified")
	return true, nil
}

// DeviceType returns the device type slug of the device.
func (p *Platform) DeviceType(ctx context.Context, uuid string) (string, error) {
	d, err := p.api.Device(ctx, uuid)
	if err != nil {
		return "", errors.WithMessage(err, "could not get device")
	}
	dt := d.deviceType()
	if dt == "" {
		return "", errors.Errorf("device %s has no device type", uuid)
	}
	return dt, nil
}

// OSVersion returns the device's current host OS version in its normalized
// form.
func (p *Platform) OSVersion(ctx context.Context, uuid string) (string, error) {
	d, err := p.api.Device(ctx, uuid)
	if err != nil {
		return "", errors.WithMessage(err, "could not get device")
	}
	v := version.Normalize(d.OSVersion)
	if v == "" {
		return "", errors.Errorf("device %s has not reported an OS version", uuid)
	}
	return v, nil
}

// SupportedUpdateVersions lists the host OS releases for deviceType that a
// device running current may update to, newest first.
func (p *Platform) SupportedUpdateVersions(ctx context.Context, deviceType, current string) ([]string, error) {
	from, err := version.Parse(current)
	if err != nil {
		return nil, errors.WithMessage(err, "unusable current version")
	}
	releases, err := p.api.HostReleases(ctx, deviceType)
	if err != nil {
		return nil, errors.WithMessage(err, "could not list host OS releases")
	}

	seen := make(map[string]bool)
	var candidates version.Collection
	for _, r := range releases {
		if r == nil {
			continue
		}
		to, err := version.Parse(r.RawVersion)
		if err != nil {
			p.log.WithField("release", r.RawVersion).Debug("skipping unparsable release version")
			continue
		}
		if !supportedUpdate(from, to) {
			continue
		}
		if seen[to.String()] {
			continue
		}
		seen[to.String()] = true
		candidates = append(candidates, to)
	}
	sort.Stable(candidates)

	versions := make([]string, len(candidates))
	for i := range candidates {
		versions[i] = candidates[i].String()
	}
	p.log.WithFields(logrus.Fields{
		"device-type": deviceType,
		"current":     current,
		"count":       len(versions),
	}).Debug("listed supported update versions")
	return versions, nil
}

// supportedUpdate reports whether a host OS update from one version to another
// can be performed remotely.
func supportedUpdate(from, to *version.Version) bool {
	switch {
	case to.Prerelease() != "":
		return false
	case from.LessThan(version.Minimum) || to.LessThan(version.Minimum):
		return false
	case to.Major() < from.Major():
		return false
	}
	return to.GreaterThan(from)
}

// UpdateStatus reports the progress of the device's latest host OS update. A
// device that never had an update requested reports done.
func (p *Platform) UpdateStatus(ctx context.Context, uuid string) (*platform.UpdateStatus, error) {
	resp, err := p.api.HUPStatus(ctx, uuid)
	if err != nil {
		if isStatus(err, http.StatusNotFound) {
			return &platform.UpdateStatus{Status: platform.StatusDone}, nil
		}
		return nil, errors.WithMessage(err, "could not get update status")
	}
	return resp.toStatus(), nil
}

// IsOnline reports whether the device is connected to the cloud.
func (p *Platform) IsOnline(ctx context.Context, uuid string) (bool, error) {
	d, err := p.api.Device(ctx, uuid)
	if err != nil {
		return false, errors.WithMessage(err, "could not get device")
	}
	return d.IsOnline, nil
}

// StartOSUpdate requests a host OS update of the device to target.
func (p *Platform) StartOSUpdate(ctx context.Context, uuid, target string) error {
	if target == "" {
		return errors.New("no target version provided")
	}
	p.log.WithFields(logrus.Fields{
		"device": uuid,
		"target": target,
	}).Debug("requesting host OS update")
	return errors.WithMessage(p.api.StartHUP(ctx, uuid, target), "could not start update")
}
