// Package reminder holds the reminder domain types shared by the resolver,
// the store, the scheduler and the chat layer.
//
// A Record pairs a Schedule (one-shot Instant or calendar Recurrence) with the
// owner, scope, recipients and rich message body. Recurrence converts to a
// robfig/cron expression for next-fire computation.
package reminder
