// Package timewindow decides when certificate work may run.
//
// Every civil-date comparison and cutoff check in the service goes through Policy so the
// recurring trigger, the per-event one-shot plans and manual runs agree on what "today" means
// in the configured timezone.
package timewindow
