// Package scheduler fires the certificate steps.
//
// Two triggers call the same domain.CertificateService operations:
//
//   - Recurring: a daily cron (robfig/cron) with one entry at the generation time and one
//     at the send time. Each firing re-derives the qualifying events from storage, so a
//     re-fire or restart is harmless.
//   - OneShots: per-event plans registered when an event is created, covering events that
//     appear after the day's recurring run. Each plan owns two independently cancellable
//     timers: generation, then dispatch.
//
// Events and participants are processed sequentially. A failure on one event is logged and
// never stops the rest of a firing; the next firing is the recovery path.
package scheduler
