package ladder

import (
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/balena-os/hup-ladder/internal/testoutput"
	"github.com/balena-os/hup-ladder/pkg/logging"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/env"
)

// testSocket listens on a datagram socket named by NOTIFY_SOCKET for the
// duration of the test.
func testSocket(t *testing.T) *net.UnixConn {
	// Keep the path short, socket names are limited in length.
	dir, err := os.MkdirTemp("", "notify")
	assert.NilError(t, err)
	t.Cleanup(func() { os.RemoveAll(dir) })

	addr := &net.UnixAddr{Name: filepath.Join(dir, "sock"), Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", addr)
	assert.NilError(t, err)
	t.Cleanup(func() { conn.Close() })

	t.Cleanup(env.Patch(t, "NOTIFY_SOCKET", addr.Name))
	return conn
}

func receive(t *testing.T, conn *net.UnixConn) string {
	t.Helper()
	buf := make([]byte, 1024)
	assert.NilError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	n, err := conn.Read(buf)
	assert.NilError(t, err)
	return string(buf[:n])
}

func TestSdNotifier(t *testing.T) {
	conn := testSocket(t)
	n := &sdNotifier{log: testoutput.Logger(t, logging.New("notify"))}
	defer logging.Set(testoutput.Revert())

	n.Ready()
	assert.Equal(t, receive(t, conn), "READY=1")
	n.Status("updating to 2.88.4")
	assert.Equal(t, receive(t, conn), "STATUS=updating to 2.88.4")
	n.Stopping()
	assert.Equal(t, receive(t, conn), "STOPPING=1")
}

func TestSdNotifierWithoutServiceManager(t *testing.T) {
	n := &sdNotifier{log: testoutput.Logger(t, logging.New("notify"))}
	defer logging.Set(testoutput.Revert())

	defer env.Patch(t, "NOTIFY_SOCKET", "")()
	n.Ready()
	n.Status("completed")

	// An unreachable socket is logged and otherwise ignored.
	defer env.Patch(t, "NOTIFY_SOCKET", filepath.Join(t.TempDir(), "missing"))()
	n.Stopping()
}
