// Package server manages the HTTP listener lifecycle: non-blocking start,
// graceful shutdown and SIGINT/SIGTERM handling, with asynchronous serve
// errors surfaced on a channel.
package server
