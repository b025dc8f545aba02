// Package reminder owns the lifecycle of scheduled reminders.
//
// A Service persists tasks through a store, keeps one in-memory timer per
// pending task, recovers timers at startup and delivers through a Notifier
// when a timer fires. Delivery is attempted at most once per task: the
// task is claimed in the store before the notifier is called.
package reminder
