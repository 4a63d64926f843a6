package glpin

import (
	"unsafe"

	"github.com/go-gl/gl/v3.2-compatibility/gl"
)

// glContext issues the calls on the current GL context.
type glContext struct{}

func (glContext) pin(size int, addr unsafe.Pointer) (uint32, uint32) {
	var name uint32
	gl.GenBuffers(1, &name)
	// the buffer object takes the host memory as its storage
	gl.BindBuffer(externalVirtualMemoryBuffer, name)
	gl.BufferData(externalVirtualMemoryBuffer, size, addr, gl.STREAM_DRAW)
	status := gl.GetError()
	gl.BindBuffer(externalVirtualMemoryBuffer, 0)
	return name, status
}

func (glContext) unpin(name uint32) uint32 {
	gl.DeleteBuffers(1, &name)
	return gl.GetError()
}

func (glContext) upload(name, texture uint32, w, h int32) {
	gl.Enable(gl.TEXTURE_2D)
	gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, name)
	gl.BindTexture(gl.TEXTURE_2D, texture)
	// nil pixels read from the bound unpack buffer
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, w, h, gl.BGRA, gl.UNSIGNED_INT_8_8_8_8_REV, nil)
}

func (glContext) download(name uint32, w, h int32) {
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, name)
	gl.ReadPixels(0, 0, w, h, gl.BGRA, gl.UNSIGNED_INT_8_8_8_8_REV, nil)
}

func (glContext) fence(timeout uint64) uint32 {
	sync := gl.FenceSync(gl.SYNC_GPU_COMMANDS_COMPLETE, 0)
	status := gl.ClientWaitSync(sync, gl.SYNC_FLUSH_COMMANDS_BIT, timeout)
	gl.DeleteSync(sync)
	return status
}

func (glContext) unbind(dir uint32) {
	if dir == gl.PIXEL_UNPACK_BUFFER {
		gl.BindTexture(gl.TEXTURE_2D, 0)
		gl.BindBuffer(gl.PIXEL_UNPACK_BUFFER, 0)
		gl.Disable(gl.TEXTURE_2D)
		return
	}
	gl.BindBuffer(gl.PIXEL_PACK_BUFFER, 0)
}

func (glContext) err() uint32 { return gl.GetError() }
