// Command tutord serves the tutoring response pipeline over HTTP: a JSON
// respond endpoint, health probes and Prometheus metrics.
package main
