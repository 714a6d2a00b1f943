// Package display decides which notifications may be live at once and drives
// each admitted notification through its entrance, visible and exit phases.
//
// A Manager owns the live set and the overflow queue. Live records borrow a
// display instance from a pool.Pool and hand it back exactly once, when their
// exit transition completes. Animation and rendering are collaborators behind
// the Animator and Renderer interfaces.
//
// Nothing in this package is safe for concurrent use. Every call must happen
// on the eventloop.Scheduler the Manager was built with.
package display
