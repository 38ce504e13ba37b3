// Package ladder steps a single device through successive host OS updates
// (HUPs) until its device type offers no further supported version.
//
// The Runner is intentionally simplistic: it makes one update request at a
// time, waits a fixed interval between polls and counts failures against a
// single budget. Everything about what may be updated to, and how, is left to
// the platform it is given.
package ladder
