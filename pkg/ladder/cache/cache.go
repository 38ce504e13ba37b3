package cache

import (
	"time"

	"github.com/balena-os/hup-ladder/pkg/platform"
	"github.com/karlseguin/ccache"
)

const (
	cacheTimeout = time.Minute * 15
)

// LastStatus provides access to the last update status observed for a device.
type LastStatus interface {
	Last(uuid string) *platform.UpdateStatus
	Record(uuid string, status *platform.UpdateStatus)
	// Stop releases the cache's background worker. The cache must not be
	// used afterwards.
	Stop()
}

type lastStatus struct {
	cache *ccache.Cache
}

// NewLastStatus creates a cache suitable for storing and retrieving the last
// observed update status of a device.
func NewLastStatus() LastStatus {
	return &lastStatus{
		cache: ccache.New(ccache.Configure().MaxSize(100).ItemsToPrune(10)),
	}
}

// Last returns the last status recorded for the device, or nil when none was
// recorded or it has expired.
func (c *lastStatus) Last(uuid string) *platform.UpdateStatus {
	item := c.cache.Get(uuid)
	if item == nil {
		return nil
	}
	if item.Expired() {
		return nil
	}
	status, ok := item.Value().(*platform.UpdateStatus)
	if !ok {
		return nil
	}
	// Copy to protect against misuse of the cached status.
	cp := *status
	return &cp
}

// Record caches status as the most recent status of the device.
func (c *lastStatus) Record(uuid string, status *platform.UpdateStatus) {
	if status == nil {
		return
	}
	cp := *status
	c.cache.Set(uuid, &cp, cacheTimeout)
}

func (c *lastStatus) Stop() {
	c.cache.Stop()
}

// Changed reports whether status differs from the last one recorded for the
// device in a way worth reporting.
func Changed(last, status *platform.UpdateStatus) bool {
	if last == nil {
		return status != nil
	}
	if status == nil {
		return false
	}
	return last.Status != status.Status || last.Fatal != status.Fatal || last.Target != status.Target
}
