package services

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"

	"s5-keeper/internal/models"
)

type fakeResult struct {
	out string
	err error
}

// fakeRunner answers commands from a table keyed by "name arg1 arg2".
type fakeRunner struct {
	mu      sync.Mutex
	tools   map[string]bool
	results map[string]fakeResult
	calls   []string
}

func newFakeRunner(tools ...string) *fakeRunner {
	r := &fakeRunner{tools: map[string]bool{}, results: map[string]fakeResult{}}
	for _, t := range tools {
		r.tools[t] = true
	}
	return r
}

func (r *fakeRunner) on(cmdline, out string, err error) {
	r.results[cmdline] = fakeResult{out: out, err: err}
}

func (r *fakeRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := strings.TrimSpace(name + " " + strings.Join(args, " "))
	r.calls = append(r.calls, line)
	if res, ok := r.results[line]; ok {
		return []byte(res.out), res.err
	}
	return nil, nil
}

func (r *fakeRunner) LookPath(name string) (string, error) {
	if r.tools[name] {
		return "/usr/bin/" + name, nil
	}
	return "", exec.ErrNotFound
}

func (r *fakeRunner) called(line string) bool {
	for _, c := range r.calls {
		if c == line {
			return true
		}
	}
	return false
}

// fakeSupervisor keeps unit states in memory.
type fakeSupervisor struct {
	mu        sync.Mutex
	states    map[string]models.ServiceState
	actions   []string
	failStart bool
	// activeAfter makes State report inactive for that many queries after a start
	activeAfter int
	queries     int
	reloads     int
}

func newFakeSupervisor() *fakeSupervisor {
	return &fakeSupervisor{states: map[string]models.ServiceState{}}
}

func (s *fakeSupervisor) record(action, name string) {
	s.actions = append(s.actions, strings.TrimSpace(action+" "+name))
}

func (s *fakeSupervisor) Reload(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reloads++
	s.record("daemon-reload", "")
	return nil
}

func (s *fakeSupervisor) Enable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("enable", name)
	return nil
}

func (s *fakeSupervisor) Disable(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("disable", name)
	return nil
}

func (s *fakeSupervisor) start(action, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record(action, name)
	s.queries = 0
	if s.failStart {
		s.states[name] = models.StateInactive
		return nil
	}
	s.states[name] = models.StateActive
	return nil
}

func (s *fakeSupervisor) Start(ctx context.Context, name string) error {
	return s.start("start", name)
}

func (s *fakeSupervisor) Restart(ctx context.Context, name string) error {
	return s.start("restart", name)
}

func (s *fakeSupervisor) Stop(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("stop", name)
	s.states[name] = models.StateInactive
	return nil
}

func (s *fakeSupervisor) State(ctx context.Context, name string) models.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queries <= s.activeAfter {
		return models.StateInactive
	}
	if st, ok := s.states[name]; ok {
		return st
	}
	return models.StateInactive
}

func (s *fakeSupervisor) Status(ctx context.Context, name string) (string, error) {
	st := s.State(ctx, name)
	return fmt.Sprintf("● %s.service\n   Active: %s\n", name, st), nil
}

func (s *fakeSupervisor) did(action string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.actions {
		if a == action {
			return true
		}
	}
	return false
}

var errBoom = errors.New("boom")
