// Package notify implements domain.NotificationSink backends.
//
// Sinks are best-effort: the certificate steps call Publish through Safe, which logs a
// failure and never returns it. A nil sink is a silent no-op.
//
//	sink := notify.Multi(amqpSink, redisSink)
//	svc := services.NewCertificateService(..., sink, ...)
package notify
