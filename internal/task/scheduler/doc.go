// Package scheduler is an in-memory keyed timer wheel.
//
// It maps a task id to a fire time and a callback, nothing more. It never
// sees task content and keeps nothing across restarts; recovery is the
// caller's job.
package scheduler
