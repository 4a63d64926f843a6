// Package service runs the background services of the process.
package service

import (
	"context"
	"errors"
	"fmt"
)

// Service can be started and stopped.
type Service interface {
	Run()
	Shutdown(ctx context.Context) error
}

// Group runs services together, it stops them in reverse order.
type Group struct {
	list []Service
}

func (g *Group) Add(services ...Service) { g.list = append(g.list, services...) }

func (g *Group) Start() {
	for _, s := range g.list {
		s.Run()
	}
}

func (g *Group) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(g.list) - 1; i >= 0; i-- {
		s := g.list[i]
		if err := s.Shutdown(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errs = append(errs, fmt.Errorf("failed to stop [%v]: %w", s, err))
		}
	}
	return errors.Join(errs...)
}
