// Package graphics creates the GL context frames are transferred on.
// Everything here must run on the main thread (see thread.Call).
package graphics

import (
	"fmt"

	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
	"github.com/veandco/go-sdl2/sdl"
)

type Config struct {
	// frame size in pixels
	W, H int32
	Gl   GlConfig
}

type GlConfig struct {
	VersionMajor uint
	VersionMinor uint
}

// Context is a hidden SDL window with its GL context and
// the capture and playback textures.
type Context struct {
	w      *sdl.Window
	glWCtx sdl.GLContext
	off    offscreen
	log    *logger.Logger
}

// New initializes SDL, creates the GL context and the textures.
func New(cfg Config, log *logger.Logger) (_ *Context, err error) {
	if log == nil {
		log = logger.Default()
	}
	c := &Context{log: log.Extend(log.With().Str("m", "graphics"))}
	c.log.Debug().Msg("[SDL] [OpenGL] initialization...")

	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, fmt.Errorf("sdl init: %w", err)
	}
	defer func() {
		if err != nil {
			c.destroyWindow()
			sdl.Quit()
		}
	}()

	// the pinned buffer path uses the fixed function texture target
	c.setAttribute(sdl.GL_CONTEXT_PROFILE_MASK, sdl.GL_CONTEXT_PROFILE_COMPATIBILITY)
	c.setAttribute(sdl.GL_CONTEXT_MAJOR_VERSION, int(cfg.Gl.VersionMajor))
	c.setAttribute(sdl.GL_CONTEXT_MINOR_VERSION, int(cfg.Gl.VersionMinor))
	c.log.Debug().Msgf("[OpenGL] CONTEXT_PROFILE_COMPATIBILITY v%v.%v", cfg.Gl.VersionMajor, cfg.Gl.VersionMinor)

	if err = c.createWindow(); err != nil {
		return nil, err
	}
	if err = c.BindContext(); err != nil {
		return nil, err
	}
	if err = initContext(sdl.GLGetProcAddress); err != nil {
		return nil, err
	}
	c.printDriverInfo()
	if err = c.off.init(cfg.W, cfg.H); err != nil {
		return nil, err
	}
	return c, nil
}

// Close destroys the textures, the context and the window.
func (c *Context) Close() {
	c.log.Debug().Msg("[SDL] [OpenGL] deinitialization...")
	c.off.destroy()
	c.destroyWindow()
	sdl.Quit()
	c.log.Debug().Msgf("[SDL] [OpenGL] deinitialized (%v, %v)", sdl.GetError(), getDriverError())
}

// createWindow creates fake SDL window for OpenGL initialization purposes.
func (c *Context) createWindow() (err error) {
	var winTitle = "PlusLib transfer window"
	var winWidth, winHeight int32 = 1, 1

	if c.w, err = sdl.CreateWindow(
		winTitle,
		sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		winWidth, winHeight,
		sdl.WINDOW_OPENGL|sdl.WINDOW_HIDDEN,
	); err != nil {
		return fmt.Errorf("sdl window: %w", err)
	}
	if c.glWCtx, err = c.w.GLCreateContext(); err != nil {
		return fmt.Errorf("gl context: %w", err)
	}
	return nil
}

func (c *Context) destroyWindow() {
	if c.w == nil {
		return
	}
	if c.glWCtx != nil {
		_ = c.BindContext()
		sdl.GLDeleteContext(c.glWCtx)
		c.glWCtx = nil
	}
	if err := c.w.Destroy(); err != nil {
		c.log.Error().Err(err).Msg("[SDL] couldn't destroy the window")
	}
	c.w = nil
}

// BindContext explicitly binds context to current thread.
func (c *Context) BindContext() error { return c.w.GLMakeCurrent(c.glWCtx) }

// Textures returns the GL names the transfer backends are given.
func (c *Context) Textures() transfer.Textures {
	return transfer.Textures{Capture: c.off.capture, Playback: c.off.playback}
}

func (c *Context) setAttribute(attr sdl.GLattr, value int) {
	if err := sdl.GLSetAttribute(attr, value); err != nil {
		c.log.Error().Err(err).Msg("[SDL] attribute error")
	}
}
