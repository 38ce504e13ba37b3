package balena

import (
	"fmt"
	"net/http"

	"github.com/balena-os/hup-ladder/pkg/platform"
	"github.com/pkg/errors"
)

// deviceList and releaseList are the envelopes of resource listings from the
// API.
type deviceList struct {
	D []*device `json:"d"`
}

type releaseList struct {
	D []*release `json:"d"`
}

type actor struct {
	ID        int64  `json:"id"`
	ActorType string `json:"actorType"`
	Username  string `json:"username"`
}

type deviceTypeRef struct {
	Slug string `json:"slug"`
}

type device struct {
	ID             int64           `json:"id"`
	UUID           string          `json:"uuid"`
	IsOnline       bool            `json:"is_online"`
	OSVersion      string          `json:"os_version"`
	IsOfDeviceType []deviceTypeRef `json:"is_of__device_type"`
}

func (d *device) deviceType() string {
	if len(d.IsOfDeviceType) == 0 {
		return ""
	}
	return d.IsOfDeviceType[0].Slug
}

type release struct {
	ID         int64  `json:"id"`
	RawVersion string `json:"raw_version"`
}

type hupParameters struct {
	TargetVersion string `json:"target_version"`
}

type hupRequest struct {
	Parameters hupParameters `json:"parameters"`
}

type hupStatusResponse struct {
	Action     string        `json:"action"`
	Status     string        `json:"status"`
	Fatal      bool          `json:"fatal"`
	Error      string        `json:"error"`
	Parameters hupParameters `json:"parameters"`
}

func (r *hupStatusResponse) toStatus() *platform.UpdateStatus {
	return &platform.UpdateStatus{
		Status: platform.Status(r.Status),
		Fatal:  r.Fatal,
		Target: r.Parameters.TargetVersion,
		Error:  r.Error,
	}
}

// apiError is returned for non-2xx responses.
type apiError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.URL, e.Code, http.StatusText(e.Code), e.Body)
}

func isStatus(err error, code int) bool {
	apiErr, ok := errors.Cause(err).(*apiError)
	return ok && apiErr.Code == code
}
