// Package thread keeps OpenGL work on a single OS thread.
// GL contexts are bound to the thread that made them current,
// so context creation, texture setup and every frame transfer
// must run through Call once Wrap has taken over main.
// See: https://github.com/golang/go/wiki/LockOSThread
package thread

import "github.com/faiface/mainthread"

// Wrap runs f while the main OS thread services Call requests.
// Wrap returns when f finishes.
func Wrap(f func()) { mainthread.Run(f) }

// Call runs f on the main thread and blocks until it finishes.
func Call(f func()) { mainthread.Call(f) }

// CallErr is Call for functions that report an error.
func CallErr(f func() error) error { return mainthread.CallErr(f) }
