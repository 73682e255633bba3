// Package taskqueue holds the queues that feed asynchronous run commands
// to workers.
package taskqueue
