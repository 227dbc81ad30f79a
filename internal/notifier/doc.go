// Package notifier delivers fired reminders through a Sender.
//
// Deliveries share a global token bucket and a per-chat gap so a burst of
// reminders due at the same minute does not trip the chat platform's flood
// limits. A delivery may carry a dedup key; a key that was delivered within
// the dedup window is skipped, which keeps executor retries from sending the
// same reminder twice.
//
// Retries are not handled here. Deliver is synchronous and meant to run
// inside a task engine job, which owns retry and backoff.
package notifier
