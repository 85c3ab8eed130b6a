// Package pipeline runs a site check as an ordered list of steps over a
// shared Run.
//
// A check walks the site, parses every document on a bounded pool, probes
// the external URLs it found and finally resolves each reference into
// results. Resolution is registered as a final step so that a cancelled or
// timed-out run still reports everything collected up to that point.
package pipeline
