// Package eventloop provides the single-threaded scheduler the display core runs on.
package eventloop
