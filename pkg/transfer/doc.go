// Package transfer moves video frames between pinned host memory and GPU
// textures without staging copies.
//
// Two mutually exclusive fast paths are supported. The native copy engine
// (NVIDIA GPUDirect for Video) copies between a page-locked host buffer and a
// registered texture and orders producer and consumer with semaphores shared
// by the CPU and the GPU. The pinned buffer path (GL_AMD_pinned_memory) maps
// the host buffer as a GL buffer object and serializes access with fences.
//
// The flow is:
//
//	kind := transfer.Detect(info, opts)          // once per graphics context
//	cfg, err := init.Initialize(info, params)    // once per process
//	s, err := transfer.NewSession(cfg, buf, dir) // per buffer
//	s.TransferBegin()                            // per frame
//	s.WaitForCompletion()
//	s.Close()
//
// A session is driven by one goroutine, the one owning the GL context.
// Concurrency exists only between that goroutine and the copy hardware.
package transfer
