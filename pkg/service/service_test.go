package service

import (
	"context"
	"errors"
	"testing"
)

type fake struct {
	name string
	log  *[]string
	err  error
}

func (f fake) Run() { *f.log = append(*f.log, "run "+f.name) }

func (f fake) Shutdown(context.Context) error {
	*f.log = append(*f.log, "stop "+f.name)
	return f.err
}

func TestGroupOrder(t *testing.T) {
	var log []string
	boom := errors.New("boom")

	var g Group
	g.Add(fake{name: "a", log: &log}, fake{name: "b", log: &log, err: boom}, fake{name: "c", log: &log, err: context.Canceled})
	g.Start()
	err := g.Shutdown(context.Background())

	want := []string{"run a", "run b", "run c", "stop c", "stop b", "stop a"}
	for i, w := range want {
		if log[i] != w {
			t.Fatalf("log = %v, want %v", log, want)
		}
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want %v", err, boom)
	}
}
