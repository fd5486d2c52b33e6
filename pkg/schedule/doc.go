// Package schedule validates, describes and evaluates the 5-field cron
// expressions carried by trigger nodes, and runs flows on those schedules.
// An empty schedule is valid and means the trigger never fires on its own.
package schedule
