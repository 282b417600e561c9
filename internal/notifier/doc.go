// Package notifier delivers short operator messages: schedule warnings,
// overdue required tasks, the daily digest, and forwarded WARN+ log records.
//
// Messages go through a bounded queue drained by a small worker pool. Delivery
// is rate limited, retried with jittered backoff, and deduplicated within a
// window so the same conflict is not reported on every refresh. The actual
// transport is a Sender; the telegram subpackage provides one.
//
// A disabled Service drops every message and reports ErrDisabled.
package notifier
