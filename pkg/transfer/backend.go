package transfer

// BytesPerPixel of the BGRA frames the engine moves.
const BytesPerPixel = 4

// PinnedBufferAlignment is the host address alignment
// the pinned buffer extension expects.
const PinnedBufferAlignment = 4096

type (
	SyncHandle   uint64
	BufferHandle uint64
)

// Textures are the GL names of the textures frames are copied to and from.
// Capture receives CPU to GPU frames, playback is read back GPU to CPU.
type Textures struct {
	Capture  uint32
	Playback uint32
}

// Constants reported by the native copy engine once per context.
type Constants struct {
	BufferAddrAlignment      uint32
	BufferGPUStrideAlignment uint32
	SemaphoreAddrAlignment   uint32
	SemaphoreAllocSize       uint32
	SemaphorePayloadOffset   uint32
	SemaphorePayloadSize     uint32
}

type PixelFormat int

const (
	FormatBGRA PixelFormat = iota
)

type ComponentType int

const (
	TypeUnsignedByte ComponentType = iota
)

// BufferDesc describes a host buffer to a backend.
type BufferDesc struct {
	Width  uint32
	Height uint32
	Stride uint32
	Format PixelFormat
	Type   ComponentType
	Size   uint64
	// Buffer is the host memory, it must stay valid until unregistered.
	Buffer []byte
}

// SyncPoint is a semaphore value to wait on or to release.
type SyncPoint struct {
	Handle SyncHandle
	Value  uint32
}

// Op is one frame copy.
type Op struct {
	Dir    Direction
	Buffer BufferHandle
	// Src and Dst are used by the native copy engine only.
	Src, Dst SyncPoint
	Width    uint32
	Height   uint32
}

// Backend is a zero-copy transfer mechanism.
// All calls come from the goroutine owning the graphics context.
type Backend interface {
	Kind() Kind
	// Init prepares the backend for the textures and reports its constants.
	Init(tex Textures) (Constants, error)
	// ImportSync binds a zeroed semaphore word to a backend sync object.
	ImportSync(sem *uint32) (SyncHandle, error)
	FreeSync(SyncHandle) error
	// RegisterBuffer makes the host buffer usable for copies.
	RegisterBuffer(desc BufferDesc, dir Direction) (BufferHandle, error)
	UnregisterBuffer(BufferHandle) error
	// BeginTransfer issues the copy. The native copy engine returns
	// once the copy is queued, the pinned buffer path after its fence.
	BeginTransfer(op Op) error
	// Wait blocks until the semaphore of the point reaches its value.
	Wait(SyncPoint) error
	// LockTexture keeps copies off the texture of the direction
	// until UnlockTexture.
	LockTexture(Direction) error
	UnlockTexture(Direction) error
	Teardown() error
}

// BackendFactory builds the adapter of a detected kind.
type BackendFactory func(Kind) (Backend, error)
