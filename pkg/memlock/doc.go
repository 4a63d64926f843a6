// Package memlock keeps frame buffers resident in physical memory.
//
// Copy engines read and write host memory with DMA, so a buffer handed to one
// must not be paged out while a transfer can touch it. The Manager raises the
// process resident-memory quota (the working set on Windows, RLIMIT_MEMLOCK on
// Unix) before pages are locked, and accounts every locked byte so that
// concurrent sessions share one budget.
//
// Buffers given to drivers must also live outside the Go heap: the driver keeps
// the address after the call returns. Alloc and AllocAligned return such
// memory.
package memlock
