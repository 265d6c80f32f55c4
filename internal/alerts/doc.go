// Package alerts is a lossy in-process broadcast bus for human readable
// alert strings.
//
// Every live subscription receives every message published after it
// subscribed, in publish order. Each subscription has its own bounded
// buffer; when a slow subscriber's buffer is full the oldest unread message
// is discarded. Publish never blocks and never fails.
package alerts
