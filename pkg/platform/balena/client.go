package balena

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	requestTimeout = 30 * time.Second
	// maxResponseBody bounds how much of a response is read.
	maxResponseBody = 4 << 20
)

// api is the binding between the platform and the remote services backing it.
type api interface {
	SetToken(token string)
	Whoami(ctx context.Context) (*actor, error)
	Device(ctx context.Context, uuid string) (*device, error)
	HostReleases(ctx context.Context, deviceType string) ([]*release, error)
	HUPStatus(ctx context.Context, uuid string) (*hupStatusResponse, error)
	StartHUP(ctx context.Context, uuid, target string) error
}

var _ api = (*client)(nil)

type client struct {
	log        logging.Logger
	http       *http.Client
	limiter    *rate.Limiter
	apiURL     string
	actionsURL string

	mu    sync.RWMutex
	token string
}

func newClient(log logging.Logger, httpClient *http.Client, limiter *rate.Limiter, apiURL, actionsURL string) *client {
	return &client{
		log:        log,
		http:       httpClient,
		limiter:    limiter,
		apiURL:     strings.TrimRight(apiURL, "/"),
		actionsURL: strings.TrimRight(actionsURL, "/"),
	}
}

func (c *client) SetToken(token string) {
	c.mu.Lock()
	c.token = token
	c.mu.Unlock()
}

func (c *client) bearer() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

func (c *client) Whoami(ctx context.Context) (*actor, error) {
	var a actor
	if err := c.do(ctx, http.MethodGet, c.apiURL+pathWhoami, nil, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

func (c *client) Device(ctx context.Context, uuid string) (*device, error) {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("uuid eq %s", quote(uuid)))
	q.Set("$select", "id,uuid,is_online,os_version")
	q.Set("$expand", "is_of__device_type($select=slug)")

	var list deviceList
	if err := c.do(ctx, http.MethodGet, c.apiURL+pathDevice+"?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	if len(list.D) == 0 || list.D[0] == nil {
		return nil, errors.Errorf("device %s not found", uuid)
	}
	return list.D[0], nil
}

func (c *client) HostReleases(ctx context.Context, deviceType string) ([]*release, error) {
	q := url.Values{}
	q.Set("$select", "id,raw_version")
	q.Set("$filter", fmt.Sprintf(
		"is_final eq true and is_invalidated eq false and status eq %s and "+
			"belongs_to__application/any(a:a/is_host eq true and "+
			"a/is_for__device_type/any(dt:dt/slug eq %s))",
		quote(releaseStatusSuccess), quote(deviceType)))
	q.Set("$orderby", "created_at desc")

	var list releaseList
	if err := c.do(ctx, http.MethodGet, c.apiURL+pathRelease+"?"+q.Encode(), nil, &list); err != nil {
		return nil, err
	}
	return list.D, nil
}

func (c *client) hupURL(uuid string) string {
	return fmt.Sprintf("%s/%s/%s/%s", c.actionsURL, actionsVersion, url.PathEscape(uuid), hupAction)
}

func (c *client) HUPStatus(ctx context.Context, uuid string) (*hupStatusResponse, error) {
	var status hupStatusResponse
	if err := c.do(ctx, http.MethodGet, c.hupURL(uuid), nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *client) StartHUP(ctx context.Context, uuid, target string) error {
	body := &hupRequest{Parameters: hupParameters{TargetVersion: target}}
	return c.do(ctx, http.MethodPost, c.hupURL(uuid), body, nil)
}

func (c *client) do(ctx context.Context, method, target string, body interface{}, out interface{}) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return errors.Wrap(err, "request not permitted")
		}
	}

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "could not encode request")
		}
		reader = bytes.NewReader(data)
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return errors.Wrap(err, "could not create request")
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token := c.bearer(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, redact(target))
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return errors.Wrap(err, "could not read response")
	}

	if logging.Debuggable {
		c.log.WithFields(logrus.Fields{
			"method": method,
			"url":    redact(target),
			"code":   resp.StatusCode,
			"body":   string(data),
		}).Debug("api response")
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{
			Method: method,
			URL:    redact(target),
			Code:   resp.StatusCode,
			Body:   strings.TrimSpace(string(data)),
		}
	}
	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return errors.Wrap(err, "could not decode response")
	}
	return nil
}

// quote renders s as an OData string literal.
func quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// redact drops the query from a URL for logging and errors.
func redact(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}
