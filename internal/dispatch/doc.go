// Package dispatch is the reminder delivery engine.
//
// A Service arms one timer per pending reminder (rescheduling supersedes
// the previous timer for that id), feeds due jobs to a worker pool, and
// retries failed deliveries with exponential backoff before marking the
// reminder failed. Completed recurring reminders spawn a new pending
// sibling through the recurrence rules.
//
// Durability comes from the store, not the timers: Start re-arms every
// pending reminder and a periodic sweep rescans for anything a crash or
// full queue dropped. Delivery is at-least-once; the conditional status
// transition in the store is what keeps duplicates rare.
package dispatch
