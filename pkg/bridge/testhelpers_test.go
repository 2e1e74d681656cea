// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package bridge

import (
	"context"
	"sync"
	"testing"
	"time"
)

// fakeSession is a scriptable Session for supervisor and lifecycle tests.
// Stage errors are consumed one per call; a nil script entry means success.
type fakeSession struct {
	mu        sync.Mutex
	dialErrs  []error
	authErrs  []error
	subErrs   []error
	runErrs   []error
	sendErr   error
	dialCalls int
	closes    int
	sent      []string

	// blockRun makes Run ignore its error script and block until the
	// context is cancelled (or forever when ignoreCtx is set).
	blockRun  bool
	ignoreCtx bool
}

func popErr(errs *[]error) error {
	if len(*errs) == 0 {
		return nil
	}
	err := (*errs)[0]
	*errs = (*errs)[1:]
	return err
}

func (f *fakeSession) Dial(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dialCalls++
	return popErr(&f.dialErrs)
}

func (f *fakeSession) Auth(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return popErr(&f.authErrs)
}

func (f *fakeSession) Subscribe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return popErr(&f.subErrs)
}

func (f *fakeSession) Run(ctx context.Context) error {
	f.mu.Lock()
	block := f.blockRun
	ignore := f.ignoreCtx
	f.mu.Unlock()
	if block {
		if ignore {
			select {} // simulate a stuck session for shutdown-timeout tests
		}
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return popErr(&f.runErrs)
}

func (f *fakeSession) Send(ctx context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeSession) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
}

func (f *fakeSession) DialCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dialCalls
}

// fakeTarget records router send calls for one platform.
type fakeTarget struct {
	platform Platform
	err      error

	mu   sync.Mutex
	sent []string
}

func (f *fakeTarget) Platform() Platform {
	return f.platform
}

func (f *fakeTarget) Send(_ context.Context, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, body)
	return nil
}

func (f *fakeTarget) Sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]string, len(f.sent))
	copy(cp, f.sent)
	return cp
}

// fakeWebhook captures posted content on a channel so tests can wait for
// the router's asynchronous webhook delivery.
type fakeWebhook struct {
	posts chan string
	err   error
}

func newFakeWebhook() *fakeWebhook {
	return &fakeWebhook{posts: make(chan string, 8)}
}

func (f *fakeWebhook) Post(_ context.Context, content string) error {
	f.posts <- content
	return f.err
}

func (f *fakeWebhook) waitPost(t *testing.T) string {
	t.Helper()
	select {
	case p := <-f.posts:
		return p
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for webhook post")
		return ""
	}
}

// waitFor polls cond until it is true or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// testReconnect returns supervisor timings fast enough for tests.
func testReconnect() ReconnectConfig {
	return ReconnectConfig{
		BaseDelay:       Duration(time.Millisecond),
		MaxDelay:        Duration(5 * time.Millisecond),
		ShutdownTimeout: Duration(100 * time.Millisecond),
	}
}
