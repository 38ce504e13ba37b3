package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/balena-os/hup-ladder/pkg/config"
	"github.com/balena-os/hup-ladder/internal/testoutput"
	"github.com/balena-os/hup-ladder/pkg/logging"
	"github.com/balena-os/hup-ladder/pkg/platform"
	"github.com/pkg/errors"
	"gotest.tools/v3/assert"
)

const testUUID = "0123456789abcdef"

// testBalena serves just enough of the API and actions service for a ladder
// that starts one update and then finds nothing newer.
type testBalena struct {
	osVersion string
	started   []string
}

func (b *testBalena) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer test-token" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	switch r.URL.Path {
	case "/actor/v1/whoami":
		io.WriteString(w, `{"id":1,"actorType":"user","username":"tester"}`)
	case "/v6/device":
		io.WriteString(w, `{"d":[{"id":1,"uuid":"`+testUUID+`","is_online":true,`+
			`"os_version":"balenaOS `+b.osVersion+`",`+
			`"is_of__device_type":[{"slug":"raspberrypi4-64"}]}]}`)
	case "/v6/release":
		io.WriteString(w, `{"d":[{"raw_version":"2.50.1+rev1"},{"raw_version":"2.60.0"},{"raw_version":"2.88.4"}]}`)
	case "/v2/" + testUUID + "/resinhup":
		if r.Method == http.MethodPost {
			body, _ := io.ReadAll(r.Body)
			switch {
			case strings.Contains(string(body), `"2.60.0"`):
				b.started = append(b.started, "2.60.0")
				b.osVersion = "2.60.0"
			case strings.Contains(string(body), `"2.88.4"`):
				b.started = append(b.started, "2.88.4")
				b.osVersion = "2.88.4"
			}
			w.WriteHeader(http.StatusAccepted)
			return
		}
		io.WriteString(w, `{"action":"resinhup","status":"done","fatal":false}`)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func testConfig(url string) *config.Config {
	cfg := config.Default()
	cfg.UUID = testUUID
	cfg.Token = "test-token"
	cfg.APIURL = url
	cfg.ActionsURL = url
	cfg.PollInterval = time.Millisecond
	return cfg
}

func TestRunLadder(t *testing.T) {
	logging.Set(testoutput.Setter(t))
	defer logging.Set(testoutput.Revert())

	fake := &testBalena{osVersion: "2.50.1+rev1"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	err := runLadder(context.Background(), testConfig(srv.URL))
	assert.NilError(t, err)
	// From 2.50.1+rev1 the candidates are 2.88.4 and 2.60.0; the positional
	// pick takes 2.88.4, after which nothing newer is left.
	assert.DeepEqual(t, fake.started, []string{"2.88.4"})
}

func TestRunLadderRejectedToken(t *testing.T) {
	logging.Set(testoutput.Setter(t))
	defer logging.Set(testoutput.Revert())

	fake := &testBalena{osVersion: "2.50.1+rev1"}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	cfg := testConfig(srv.URL)
	cfg.Token = "wrong-token"
	err := runLadder(context.Background(), cfg)
	assert.Equal(t, errors.Cause(err), platform.ErrNotLoggedIn)
	assert.Equal(t, len(fake.started), 0)
}
