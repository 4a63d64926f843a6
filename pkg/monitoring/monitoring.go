// Package monitoring serves the prometheus metrics and pprof
// endpoints of the process.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/nkusongzhichao/PlusLib/pkg/config/monitoring"
	"github.com/nkusongzhichao/PlusLib/pkg/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Monitoring struct {
	conf   monitoring.Config
	server *http.Server
	ls     net.Listener
	log    *logger.Logger
}

// New creates new monitoring service.
// The listener is opened right away, a busy port rolls to the next free one.
func New(conf monitoring.Config, log *logger.Logger) (*Monitoring, error) {
	if log == nil {
		log = logger.Default()
	}
	log = log.Extend(log.With().Str("m", "monitoring"))

	ls, err := newListener(fmt.Sprintf(":%d", conf.Port), true, log)
	if err != nil {
		return nil, err
	}
	addr := ls.Addr().String()

	h := http.NewServeMux()
	if conf.ProfilingEnabled {
		prefix := fmt.Sprintf("%s/debug/pprof", conf.URLPrefix)
		log.Info().Msgf("Profiling is enabled at %v", addr+prefix)
		h.HandleFunc(prefix+"/", pprof.Index)
		h.HandleFunc(prefix+"/cmdline", pprof.Cmdline)
		h.HandleFunc(prefix+"/profile", pprof.Profile)
		h.HandleFunc(prefix+"/symbol", pprof.Symbol)
		h.HandleFunc(prefix+"/trace", pprof.Trace)
		// the index only renders links, profiles under a custom prefix are explicit
		for _, p := range []string{"allocs", "block", "goroutine", "heap", "mutex", "threadcreate"} {
			h.Handle(prefix+"/"+p, pprof.Handler(p))
		}
	}
	if conf.MetricEnabled {
		metricPath := fmt.Sprintf("%s/metrics", conf.URLPrefix)
		log.Info().Msgf("Prometheus metric is enabled at %v", addr+metricPath)
		h.Handle(metricPath, promhttp.Handler())
	}

	return &Monitoring{
		conf: conf,
		ls:   ls,
		log:  log,
		server: &http.Server{
			Handler:      h,
			IdleTimeout:  120 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 60 * time.Second,
		},
	}, nil
}

func (m *Monitoring) Run() {
	m.log.Info().Msgf("Starting monitoring server at %v", m.Addr())
	go func() {
		if err := m.server.Serve(m.ls); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.log.Error().Err(err).Msg("Monitoring server")
		}
	}()
}

func (m *Monitoring) Shutdown(ctx context.Context) error {
	m.log.Debug().Msg("Shutting down monitoring server")
	return m.server.Shutdown(ctx)
}

// Addr is the address the server listens on.
func (m *Monitoring) Addr() string { return m.ls.Addr().String() }

func (m *Monitoring) String() string {
	return fmt.Sprintf("monitoring::%s:%d", m.conf.URLPrefix, m.conf.Port)
}
