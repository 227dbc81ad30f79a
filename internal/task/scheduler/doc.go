// Package scheduler keeps the live timer handles for reminders.
//
// One-shot instants use time.AfterFunc guarded by a per-arm version so a
// cancelled or re-armed timer never fires stale work. Recurrences run on a
// robfig/cron instance in local time. The scheduler only triggers; fired jobs
// are handed to an Executor (the task engine) for execution and retries.
package scheduler
