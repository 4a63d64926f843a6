package graphics

import (
	"fmt"
	"unsafe"

	"github.com/go-gl/gl/v3.2-compatibility/gl"
)

type offscreen struct {
	// capture holds incoming 4:2:2 frames, two pixels per texel
	capture uint32
	// playback is read back through fbo
	playback uint32
	fbo      uint32
	// read side of the capture texture for Render
	captureFbo uint32

	width  int32
	height int32
}

func initContext(getProcAddr func(name string) unsafe.Pointer) error {
	if err := gl.InitWithProcAddrFunc(getProcAddr); err != nil {
		return fmt.Errorf("gl init: %w", err)
	}
	return nil
}

func newTexture(w, h int32) uint32 {
	var tex uint32
	gl.GenTextures(1, &tex)
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA8, w, h, 0, gl.BGRA, gl.UNSIGNED_INT_8_8_8_8_REV, nil)
	gl.BindTexture(gl.TEXTURE_2D, 0)
	return tex
}

func (o *offscreen) init(w, h int32) error {
	if w <= 0 || h <= 0 || w%2 != 0 {
		return fmt.Errorf("bad frame size %vx%v", w, h)
	}
	o.width, o.height = w, h

	o.capture = newTexture(w/2, h)
	o.playback = newTexture(w, h)

	gl.GenFramebuffers(1, &o.fbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, o.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, o.playback, 0)

	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	if status != gl.FRAMEBUFFER_COMPLETE {
		e := gl.GetError()
		o.destroy()
		return fmt.Errorf("framebuffer is invalid, status: 0x%X, GL error: 0x%X", status, e)
	}
	gl.GenFramebuffers(1, &o.captureFbo)
	gl.BindFramebuffer(gl.FRAMEBUFFER, o.captureFbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.COLOR_ATTACHMENT0, gl.TEXTURE_2D, o.capture, 0)
	if status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER); status != gl.FRAMEBUFFER_COMPLETE {
		o.destroy()
		return fmt.Errorf("capture framebuffer is invalid, status: 0x%X", status)
	}

	// pinned buffer read backs take the current read framebuffer
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, o.fbo)
	return nil
}

func (o *offscreen) destroy() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	for _, f := range []*uint32{&o.fbo, &o.captureFbo} {
		if *f != 0 {
			gl.DeleteFramebuffers(1, f)
		}
	}
	for _, t := range []*uint32{&o.capture, &o.playback} {
		if *t != 0 {
			gl.DeleteTextures(1, t)
		}
	}
	*o = offscreen{}
}

// Render stretches the packed capture texture over the playback one.
// Both textures must be held with BeginTextureInUse by the caller.
func (c *Context) Render() error {
	o := &c.off
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, o.captureFbo)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, o.fbo)
	gl.BlitFramebuffer(0, 0, o.width/2, o.height, 0, 0, o.width, o.height, gl.COLOR_BUFFER_BIT, gl.NEAREST)
	gl.BindFramebuffer(gl.DRAW_FRAMEBUFFER, 0)
	gl.BindFramebuffer(gl.READ_FRAMEBUFFER, o.fbo)
	if e := getDriverError(); e != gl.NO_ERROR {
		return fmt.Errorf("blit, GL error: 0x%X", e)
	}
	return nil
}

// Renderer is the GL_RENDERER string, often the name of the GPU.
// In the case of Mesa3d, it would be i.e "Gallium 0.4 on NVA8".
func (c *Context) Renderer() string { return get(gl.RENDERER) }

// Extensions is the space separated GL_EXTENSIONS string.
func (c *Context) Extensions() string { return get(gl.EXTENSIONS) }

// ReadPlayback reads the playback texture into dst through the
// conventional path. It is the fallback without a fast path.
func (c *Context) ReadPlayback(dst []byte) error {
	if n := int(c.off.width * c.off.height * 4); len(dst) < n {
		return fmt.Errorf("short buffer %v < %v", len(dst), n)
	}
	gl.ReadPixels(0, 0, c.off.width, c.off.height, gl.BGRA, gl.UNSIGNED_INT_8_8_8_8_REV, unsafe.Pointer(&dst[0]))
	if e := getDriverError(); e != gl.NO_ERROR {
		return fmt.Errorf("read pixels, GL error: 0x%X", e)
	}
	return nil
}

// UploadCapture writes one 4:2:2 frame to the capture texture
// through the conventional path.
func (c *Context) UploadCapture(src []byte) error {
	if n := int(c.off.width / 2 * c.off.height * 4); len(src) < n {
		return fmt.Errorf("short buffer %v < %v", len(src), n)
	}
	gl.BindTexture(gl.TEXTURE_2D, c.off.capture)
	gl.TexSubImage2D(gl.TEXTURE_2D, 0, 0, 0, c.off.width/2, c.off.height, gl.BGRA, gl.UNSIGNED_INT_8_8_8_8_REV, unsafe.Pointer(&src[0]))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if e := getDriverError(); e != gl.NO_ERROR {
		return fmt.Errorf("tex sub image, GL error: 0x%X", e)
	}
	return nil
}

func (c *Context) printDriverInfo() {
	c.log.Info().
		Str("version", get(gl.VERSION)).
		Str("vendor", get(gl.VENDOR)).
		Str("renderer", get(gl.RENDERER)).
		Str("glsl", get(gl.SHADING_LANGUAGE_VERSION)).
		Msg("[OpenGL]")
}

func getDriverError() uint32 { return gl.GetError() }

func get(name uint32) string { return gl.GoStr(gl.GetString(name)) }
