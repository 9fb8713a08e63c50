// Package mysql mirrors dead-lettered work log entries into a MySQL 8.0+ table.
//
// The fail log file stays authoritative; the table gives operators a
// queryable view with an open/resolved workflow. Store implements
// worklog.DeadLetterSink, and CleanupMaintainer periodically deletes
// resolved rows under a GET_LOCK advisory lock so several daemons can share
// one table.
package mysql
