package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Freeeeeet/skillswap_core/internal/call"
	"github.com/Freeeeeet/skillswap_core/internal/media"
	"github.com/Freeeeeet/skillswap_core/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubMachine struct {
	mu       sync.Mutex
	session  model.Session
	endNotes []string
}

func (m *stubMachine) Session() model.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session
}

func (m *stubMachine) Start(context.Context) error { return nil }

func (m *stubMachine) End(_ context.Context, notes string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.endNotes = append(m.endNotes, notes)
	m.session.Status = model.SessionStatusCompleted
	return nil
}

func (m *stubMachine) MarkEndedRemotely(model.Role) {}

func (m *stubMachine) Ends() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.endNotes...)
}

func joinedCall(t *testing.T) (*stubMachine, *call.Orchestrator, *media.LinkProvider, chan call.ExitReason) {
	t.Helper()
	m := &stubMachine{session: model.Session{ID: "s1", Status: model.SessionStatusInProgress, RoomID: "room-1"}}
	provider := media.NewLinkProvider("https://meet.example", nil, zap.NewNop())
	exits := make(chan call.ExitReason, 1)
	orch := call.NewOrchestrator(m, provider, call.Options{
		EndTimeout: time.Second,
		OnExit:     func(r call.ExitReason) { exits <- r },
	}, zap.NewNop())
	require.NoError(t, orch.Join(context.Background(), "Ann"))
	require.Eventually(t, orch.JoinedLocally, time.Second, time.Millisecond)
	return m, orch, provider, exits
}

func TestWaitForCallExit_LeftRoomEndsSession(t *testing.T) {
	m, orch, provider, exits := joinedCall(t)

	var out bytes.Buffer
	err := waitForCallExit(context.Background(), strings.NewReader("left\n"), &out, orch, provider, exits, "")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "You left the call")
	assert.Len(t, m.Ends(), 1)
}

func TestWaitForCallExit_EnterEndsWithNotes(t *testing.T) {
	m, orch, provider, exits := joinedCall(t)

	var out bytes.Buffer
	err := waitForCallExit(context.Background(), strings.NewReader("+u2\n\n"), &out, orch, provider, exits, "recap")
	require.NoError(t, err)

	assert.Contains(t, out.String(), "Session ended")
	assert.Equal(t, []string{"recap"}, m.Ends())
}
