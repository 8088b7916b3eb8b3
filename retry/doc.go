// Package retry wraps fallible remote operations with bounded retries,
// exponential backoff with jitter and a terminal-error fast path.
package retry
