package main

import (
	"github.com/nkusongzhichao/PlusLib/pkg/config"
	"github.com/nkusongzhichao/PlusLib/pkg/engine"
	"github.com/nkusongzhichao/PlusLib/pkg/graphics"
	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/nkusongzhichao/PlusLib/pkg/memlock"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer/dvp"
	"github.com/nkusongzhichao/PlusLib/pkg/transfer/glpin"
)

// glPlatform is the GPU of the machine behind an SDL GL context.
type glPlatform struct {
	*graphics.Context

	conf config.Transfer
	log  *logger.Logger
}

func newPlatform(conf config.Config, log *logger.Logger) (engine.Platform, error) {
	if conf.Transfer.Simulate {
		log.Warn().Str("renderer", conf.Transfer.SimulateRenderer).Msg("Simulated copy engine")
		return engine.NewSimulated(conf.Transfer.SimulateRenderer), nil
	}
	ctx, err := graphics.New(graphics.Config{
		W: int32(conf.Transfer.Width),
		H: int32(conf.Transfer.Height),
		Gl: graphics.GlConfig{
			VersionMajor: conf.Graphics.GLVersionMajor,
			VersionMinor: conf.Graphics.GLVersionMinor,
		},
	}, log)
	if err != nil {
		return nil, err
	}
	return &glPlatform{Context: ctx, conf: conf.Transfer, log: log}, nil
}

func (p *glPlatform) Backends() transfer.BackendFactory {
	return func(k transfer.Kind) (transfer.Backend, error) {
		switch k {
		case transfer.NativeCopyEngine:
			b, err := dvp.New(dvp.Options{Log: p.log})
			if err != nil {
				return nil, err
			}
			return b, nil
		case transfer.PinnedBuffer:
			return glpin.New(glpin.Options{FenceTimeout: p.conf.FenceTimeout, Log: p.log}), nil
		}
		return nil, transfer.ErrCapabilityUnavailable
	}
}

func (p *glPlatform) Pinning(opts memlock.Options) *memlock.Manager {
	return memlock.NewSystemManager(opts)
}

func (p *glPlatform) Close() error {
	p.Context.Close()
	return nil
}
