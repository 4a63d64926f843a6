package engine

import (
	"fmt"
	"sync"

	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer/transfertest"
)

// Simulated is a platform without a GPU, the copies run on
// the in-memory backend.
type Simulated struct {
	transfertest.Driver

	mu   sync.Mutex
	fake *transfertest.Backend
}

// NewSimulated reports both fast paths unless the renderer
// says otherwise, so the native copy engine wins on a Quadro.
func NewSimulated(renderer string) *Simulated {
	return &Simulated{Driver: transfertest.Driver{
		RendererName:  renderer,
		ExtensionList: transfertest.Radeon.ExtensionList,
	}}
}

func (s *Simulated) Textures() transfer.Textures { return transfer.Textures{Capture: 1, Playback: 2} }

func (s *Simulated) Backends() transfer.BackendFactory {
	return func(k transfer.Kind) (transfer.Backend, error) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fake = transfertest.New(k)
		return s.fake, nil
	}
}

// Pinning never touches the quota of the process.
func (s *Simulated) Pinning(opts memlock.Options) *memlock.Manager {
	return memlock.NewManager(&transfertest.Quota{}, &transfertest.Locker{}, opts)
}

// UploadCapture stores the 4:2:2 half of src as the capture texture.
func (s *Simulated) UploadCapture(src []byte) error {
	s.textures().SetTexture(transfer.CPUtoGPU, src[:len(src)/2])
	return nil
}

// ReadPlayback copies the playback texture into dst.
func (s *Simulated) ReadPlayback(dst []byte) error {
	tex := s.textures().Texture(transfer.GPUtoCPU)
	if len(dst) < len(tex) {
		return fmt.Errorf("short buffer %v < %v", len(dst), len(tex))
	}
	copy(dst, tex)
	return nil
}

// textures are those of the fast path backend or of a plain store
// when the conventional copy runs without one.
func (s *Simulated) textures() *transfertest.Backend {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fake == nil {
		s.fake = transfertest.New(transfer.None)
	}
	return s.fake
}

// Render widens each 4:2:2 texel of the capture texture to two pixels.
func (s *Simulated) Render() error {
	s.mu.Lock()
	fake := s.fake
	s.mu.Unlock()
	if fake == nil {
		return transfer.ErrNotInitialized
	}
	src := fake.Texture(transfer.CPUtoGPU)
	dst := make([]byte, 2*len(src))
	for i := 0; i+4 <= len(src); i += 4 {
		copy(dst[2*i:], src[i:i+4])
		copy(dst[2*i+4:], src[i:i+4])
	}
	fake.SetTexture(transfer.GPUtoCPU, dst)
	return nil
}

func (s *Simulated) Close() error { return nil }
