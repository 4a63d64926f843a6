//go:build dvp

package dvp

// Bindings to the DVP SDK, the headers and the library are expected
// on the compiler paths (CGO_CFLAGS, CGO_LDFLAGS).

/*
#cgo LDFLAGS: -ldvp
#cgo windows LDFLAGS: -lopengl32
#cgo linux pkg-config: gl

#ifdef _WIN32
#ifndef WIN32_LEAN_AND_MEAN
#define WIN32_LEAN_AND_MEAN 1
#endif
#include <windows.h>
#endif

#include <stdint.h>
#include <GL/gl.h>
#include "DVPAPI.h"
#include "dvpapi_gl.h"

static DVPStatus constants(uint32_t *c) {
  return dvpGetRequiredConstantsGLCtx(&c[0], &c[1], &c[2], &c[3], &c[4], &c[5]);
}

static DVPStatus importSync(uint32_t *sem, DVPSyncObjectHandle *h) {
  DVPSyncObjectDesc desc = {0};
  desc.sem = sem;
  desc.externalClientWaitFunc = NULL;
  return dvpImportSyncObject(&desc, h);
}

static DVPStatus createBuffer(uint32_t w, uint32_t h, uint32_t stride, uint32_t size, void *addr, DVPBufferHandle *out) {
  DVPSysmemBufferDesc desc = {0};
  desc.width = w;
  desc.height = h;
  desc.stride = stride;
  desc.size = size;
  desc.format = DVP_BGRA;
  desc.type = DVP_UNSIGNED_BYTE;
  desc.bufAddr = addr;
  DVPStatus s = dvpCreateBuffer(&desc, out);
  if (s != DVP_STATUS_OK) return s;
  s = dvpBindToGLCtx(*out);
  if (s != DVP_STATUS_OK) dvpDestroyBuffer(*out);
  return s;
}

static DVPStatus destroyBuffer(DVPBufferHandle h) {
  DVPStatus u = dvpUnbindFromGLCtx(h);
  DVPStatus d = dvpDestroyBuffer(h);
  return u != DVP_STATUS_OK ? u : d;
}

static DVPStatus copyLined(DVPBufferHandle tex,
    DVPBufferHandle src, DVPSyncObjectHandle srcSync, uint32_t srcValue,
    DVPBufferHandle dst, DVPSyncObjectHandle dstSync, uint32_t dstValue, uint32_t lines) {
  dvpBegin();
  dvpMapBufferWaitDVP(tex);
  DVPStatus s = dvpMemcpyLined(src, srcSync, srcValue, DVP_TIMEOUT_IGNORED, dst, dstSync, dstValue, 0, lines);
  dvpMapBufferEndDVP(tex);
  dvpEnd();
  return s;
}

static DVPStatus waitPartial(DVPSyncObjectHandle sync, uint32_t value) {
  dvpBegin();
  DVPStatus s = dvpSyncObjClientWaitPartial(sync, value, DVP_TIMEOUT_IGNORED);
  dvpEnd();
  return s;
}
*/
import "C"
import (
	"unsafe"

	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
)

type sdk struct{}

func native() (api, error) { return sdk{}, nil }

func (sdk) initContext() int {
	return int(C.dvpInitGLContext(C.DVP_DEVICE_FLAGS_SHARE_APP_CONTEXT))
}

func (sdk) closeContext() int { return int(C.dvpCloseGLContext()) }

func (sdk) constants() (transfer.Constants, int) {
	var c [6]C.uint32_t
	status := C.constants(&c[0])
	return transfer.Constants{
		BufferAddrAlignment:      uint32(c[0]),
		BufferGPUStrideAlignment: uint32(c[1]),
		SemaphoreAddrAlignment:   uint32(c[2]),
		SemaphoreAllocSize:       uint32(c[3]),
		SemaphorePayloadOffset:   uint32(c[4]),
		SemaphorePayloadSize:     uint32(c[5]),
	}, int(status)
}

func (sdk) textureBuffer(texture uint32) (handle, int) {
	var h C.DVPBufferHandle
	status := C.dvpCreateGPUTextureGL(C.GLuint(texture), &h)
	return handle(h), int(status)
}

func (sdk) freeBuffer(h handle) int { return int(C.dvpFreeBuffer(C.DVPBufferHandle(h))) }

// importSync takes memory outside of the Go heap, DVP keeps the address.
func (sdk) importSync(sem *uint32) (handle, int) {
	var h C.DVPSyncObjectHandle
	status := C.importSync((*C.uint32_t)(unsafe.Pointer(sem)), &h)
	return handle(h), int(status)
}

func (sdk) freeSync(h handle) int { return int(C.dvpFreeSyncObject(C.DVPSyncObjectHandle(h))) }

func (sdk) createBuffer(d transfer.BufferDesc) (handle, int) {
	var h C.DVPBufferHandle
	status := C.createBuffer(C.uint32_t(d.Width), C.uint32_t(d.Height), C.uint32_t(d.Stride),
		C.uint32_t(d.Size), unsafe.Pointer(&d.Buffer[0]), &h)
	return handle(h), int(status)
}

func (sdk) destroyBuffer(h handle) int { return int(C.destroyBuffer(C.DVPBufferHandle(h))) }

func (sdk) copyLined(tex, src, srcSync handle, srcValue uint32, dst, dstSync handle, dstValue uint32, lines uint32) int {
	return int(C.copyLined(C.DVPBufferHandle(tex),
		C.DVPBufferHandle(src), C.DVPSyncObjectHandle(srcSync), C.uint32_t(srcValue),
		C.DVPBufferHandle(dst), C.DVPSyncObjectHandle(dstSync), C.uint32_t(dstValue),
		C.uint32_t(lines)))
}

func (sdk) waitPartial(sync handle, value uint32) int {
	return int(C.waitPartial(C.DVPSyncObjectHandle(sync), C.uint32_t(value)))
}

func (sdk) mapWaitAPI(tex handle) int { return int(C.dvpMapBufferWaitAPI(C.DVPBufferHandle(tex))) }
func (sdk) mapEndAPI(tex handle) int  { return int(C.dvpMapBufferEndAPI(C.DVPBufferHandle(tex))) }
