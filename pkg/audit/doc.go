// Package audit defines the fire-and-forget audit contract consumed by the
// authorization engine, plus an asynchronous dispatcher that decouples
// event persistence from the authorization hot path.
//
// The engine reports every permission check and every mutating role or
// assignment operation. Audit failures are logged and dropped, never
// propagated: an audit-sink outage must not become an authorization
// outage.
//
//	sink := audit.NewSlogSink(logger)
//	auditor := audit.NewAsyncLogger(sink, audit.WithBufferSize(4096))
//	defer auditor.Close(ctx)
//
//	engine := rbac.NewEngine(store, store, c, rbac.WithAuditLogger(auditor))
//
// Sink implementations persist events wherever the deployment needs them:
// a database table, a log pipeline, or a SIEM exporter. MemorySink is
// provided for tests.
package audit
