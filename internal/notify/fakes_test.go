package notify

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"meteonotify/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeDirectory is an in-memory identity directory.
type fakeDirectory struct {
	users   []types.DirectoryUser
	listErr error
	getErr  error

	mu        sync.Mutex
	listCalls int
	getCalls  []string
}

func (d *fakeDirectory) ListUsers(ctx context.Context) ([]types.DirectoryUser, error) {
	d.mu.Lock()
	d.listCalls++
	d.mu.Unlock()
	if d.listErr != nil {
		return nil, d.listErr
	}
	return d.users, nil
}

func (d *fakeDirectory) GetUser(ctx context.Context, uid string) (*types.DirectoryUser, error) {
	d.mu.Lock()
	d.getCalls = append(d.getCalls, uid)
	d.mu.Unlock()
	if d.getErr != nil {
		return nil, d.getErr
	}
	for _, u := range d.users {
		if u.UID == uid {
			return &u, nil
		}
	}
	return nil, types.NewAppError(types.ErrCodeNotFoundUser, "user not found", nil)
}

func (d *fakeDirectory) calls() (int, []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.listCalls, append([]string(nil), d.getCalls...)
}

// fakeProvider records every SendInput. failFor selects addresses whose
// send fails; err fails every send.
type fakeProvider struct {
	err     error
	failFor map[string]error

	mu     sync.Mutex
	inputs []types.SendInput
}

func (p *fakeProvider) Send(ctx context.Context, input types.SendInput) (string, error) {
	p.mu.Lock()
	p.inputs = append(p.inputs, input)
	p.mu.Unlock()

	if p.err != nil {
		return "", p.err
	}
	for _, addr := range input.To {
		if err, ok := p.failFor[addr]; ok {
			return "", err
		}
	}
	return "msg_" + input.ReferenceID, nil
}

func (p *fakeProvider) sent() []types.SendInput {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]types.SendInput(nil), p.inputs...)
}

// recordingMetrics captures metric calls.
type recordingMetrics struct {
	mu         sync.Mutex
	recipients []int
	broadcast  []bool
	dispatches []MetricResult
	modes      []types.DispatchMode
	latencies  int
}

func (m *recordingMetrics) RecordRecipients(_ context.Context, broadcast bool, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recipients = append(m.recipients, count)
	m.broadcast = append(m.broadcast, broadcast)
}

func (m *recordingMetrics) RecordDispatch(_ context.Context, mode types.DispatchMode, result MetricResult, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modes = append(m.modes, mode)
	m.dispatches = append(m.dispatches, result)
}

func (m *recordingMetrics) RecordLatency(context.Context, types.DispatchMode, time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencies++
}
