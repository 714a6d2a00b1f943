// Package daemon provides the main orchestration for alertd.
// It runs the display manager on an event loop and coordinates rate
// limiting, periodic pool cleanup, and configuration hot-reload around it.
package daemon
