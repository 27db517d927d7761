// ABOUTME: Tests for the agent coordinator.
// ABOUTME: Covers registration idempotency, workspace scoping, messaging, and sweeps.

package coordinator

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Kochava-Studios/skwad/internal/directory"
)

func newTestCoordinator(t *testing.T) (*Coordinator, *directory.MemoryDirectory) {
	t.Helper()
	dir := directory.NewMemoryDirectory()
	coord := New(Config{Directory: dir, Logger: slog.Default()})
	return coord, dir
}

func addAgent(t *testing.T, dir *directory.MemoryDirectory, id, name, workspace string) {
	t.Helper()
	_, err := dir.AddAgent(context.Background(), &directory.Agent{
		ID:        id,
		Name:      name,
		Workspace: workspace,
		Status:    directory.StatusRunning,
	})
	require.NoError(t, err)
}

func TestRegister_UnknownAgentFails(t *testing.T) {
	coord, _ := newTestCoordinator(t)
	assert.False(t, coord.Register(context.Background(), "nobody", ""))
}

func TestRegister_Idempotent(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	require.True(t, coord.Register(ctx, "a1", "s1"))
	sess1, ok := coord.SessionFor("a1")
	require.True(t, ok)

	// Second registration is a no-op success: same session, no replacement.
	require.True(t, coord.Register(ctx, "a1", "s2"))
	sess2, ok := coord.SessionFor("a1")
	require.True(t, ok)
	assert.Equal(t, sess1.ID, sess2.ID)
}

func TestRegister_RecreatesSweptSession(t *testing.T) {
	dir := directory.NewMemoryDirectory()
	coord := New(Config{Directory: dir, Logger: slog.Default(), StaleAfter: time.Nanosecond})
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	require.True(t, coord.Register(ctx, "a1", "s1"))
	time.Sleep(time.Millisecond)
	coord.SweepSessions(ctx)
	_, ok := coord.SessionFor("a1")
	require.False(t, ok, "sweep reaps the stale session")

	// The agent stayed registered, so the next hook's register call must
	// bring the session back.
	require.True(t, coord.Register(ctx, "a1", "s2"))
	sess, ok := coord.SessionFor("a1")
	require.True(t, ok)
	assert.Equal(t, "s2", sess.ID)
}

func TestRegister_ReplacesSessionAfterUnregister(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	require.True(t, coord.Register(ctx, "a1", "s1"))
	coord.Unregister(ctx, "a1")
	_, ok := coord.SessionFor("a1")
	assert.False(t, ok)

	require.True(t, coord.Register(ctx, "a1", "s2"))
	sess, ok := coord.SessionFor("a1")
	require.True(t, ok)
	assert.Equal(t, "s2", sess.ID)
}

func TestUnregister_Idempotent(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	coord.Unregister(ctx, "a1")
	coord.Unregister(ctx, "a1")
	coord.Unregister(ctx, "missing")
}

func TestListAgents_WorkspaceScoped(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws1")
	addAgent(t, dir, "b1", "Bob", "ws1")
	addAgent(t, dir, "c1", "Carol", "ws2")

	agents := coord.ListAgents(ctx, "a1")
	require.Len(t, agents, 2)
	for _, a := range agents {
		assert.Equal(t, "ws1", a.Workspace)
	}

	// Unresolvable caller yields empty, never an error: callers may race
	// their own registration.
	assert.Empty(t, coord.ListAgents(ctx, "nobody"))
}

func TestFindAgent_IDThenName(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws1")

	byID, ok := coord.FindAgent(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, "a1", byID.ID)

	byName, ok := coord.FindAgent(ctx, "aLiCe")
	require.True(t, ok)
	assert.Equal(t, "a1", byName.ID)

	_, ok = coord.FindAgent(ctx, "nobody")
	assert.False(t, ok)
}

func TestFindAgentInWorkspace(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws1")
	addAgent(t, dir, "c1", "Carol", "ws2")

	_, ok := coord.FindAgentInWorkspace(ctx, "a1", "Carol")
	assert.False(t, ok, "resolution must not cross the workspace boundary")

	addAgent(t, dir, "b1", "Bob", "ws1")
	found, ok := coord.FindAgentInWorkspace(ctx, "a1", "bob")
	require.True(t, ok)
	assert.Equal(t, "b1", found.ID)
}

func TestSend_RequiresRegisteredSender(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "b1", ""))

	assert.False(t, coord.Send(ctx, "a1", "b1", "hi"), "unregistered sender")
	assert.False(t, coord.Send(ctx, "nobody", "b1", "hi"), "unknown sender")
}

func TestSend_CrossWorkspaceAlwaysFails(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws1")
	addAgent(t, dir, "c1", "Carol", "ws2")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "c1", ""))

	assert.False(t, coord.Send(ctx, "a1", "c1", "hi"))
	assert.False(t, coord.Send(ctx, "a1", "Carol", "hi"))
}

func TestSend_NudgesIdleRecipient(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "b1", ""))
	dir.SetStatus(ctx, "b1", directory.StatusIdle)

	require.True(t, coord.Send(ctx, "a1", "b1", "hi"))

	assert.Eventually(t, func() bool {
		for _, text := range dir.InjectedText("b1") {
			if text == mailNudge {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)
}

func TestSend_NoNudgeWhenRecipientBusy(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "b1", ""))
	dir.SetStatus(ctx, "b1", directory.StatusRunning)

	require.True(t, coord.Send(ctx, "a1", "b1", "hi"))

	time.Sleep(50 * time.Millisecond)
	for _, text := range dir.InjectedText("b1") {
		assert.NotEqual(t, mailNudge, text)
	}
}

func TestBroadcast_RegisteredWorkspacePeersOnly(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws1")
	addAgent(t, dir, "b1", "Bob", "ws1")
	addAgent(t, dir, "c1", "Carol", "ws1") // never registers
	addAgent(t, dir, "d1", "Dave", "ws2")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "b1", ""))
	require.True(t, coord.Register(ctx, "d1", ""))

	count := coord.Broadcast(ctx, "a1", "all hands")
	assert.Equal(t, 1, count, "bob only: carol unregistered, dave elsewhere, alice excluded")

	msgs := coord.CheckMessages(ctx, "b1", false)
	require.Len(t, msgs, 1)
	assert.Equal(t, "all hands", msgs[0].Content)
	assert.Empty(t, coord.CheckMessages(ctx, "c1", false))
	assert.Empty(t, coord.CheckMessages(ctx, "d1", false))
}

func TestBroadcast_UnregisteredSenderReturnsZero(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	assert.Equal(t, 0, coord.Broadcast(ctx, "a1", "hi"))
}

func TestCheckMessages_SecondCallEmpty(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "b1", ""))

	require.True(t, coord.Send(ctx, "a1", "b1", "hi"))

	first := coord.CheckMessages(ctx, "b1", true)
	require.Len(t, first, 1)
	assert.Equal(t, "hi", first[0].Content)

	assert.Empty(t, coord.CheckMessages(ctx, "b1", true))
}

func TestHasUnreadAndLatestUnreadID(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "a1", ""))
	require.True(t, coord.Register(ctx, "b1", ""))

	assert.False(t, coord.HasUnread(ctx, "b1"))
	assert.Empty(t, coord.LatestUnreadID(ctx, "b1"))

	require.True(t, coord.Send(ctx, "a1", "b1", "one"))
	require.True(t, coord.Send(ctx, "a1", "b1", "two"))

	assert.True(t, coord.HasUnread(ctx, "b1"))
	msgs := coord.CheckMessages(ctx, "b1", false)
	require.Len(t, msgs, 2)
	assert.Equal(t, msgs[1].ID, coord.LatestUnreadID(ctx, "b1"))
}

func TestEndToEnd_AliceAndBob(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "alice", "alice", "ws")
	addAgent(t, dir, "bob", "bob", "ws")

	require.True(t, coord.Register(ctx, "alice", "s1"))
	require.True(t, coord.Register(ctx, "bob", ""))

	require.True(t, coord.Send(ctx, "alice", "bob", "hi"))

	msgs := coord.CheckMessages(ctx, "bob", true)
	require.Len(t, msgs, 1)
	assert.Equal(t, "hi", msgs[0].Content)

	assert.Empty(t, coord.CheckMessages(ctx, "bob", true))
}

func TestUpdateStatus(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")

	coord.UpdateStatus(ctx, "a1", directory.StatusIdle)

	agent, ok := dir.Get(ctx, "a1")
	require.True(t, ok)
	assert.Equal(t, directory.StatusIdle, agent.Status)

	// Unknown agents are a silent no-op.
	coord.UpdateStatus(ctx, "missing", directory.StatusIdle)
}

func TestCreateAndCloseAgent(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()

	agent, err := coord.CreateAgent(ctx, "Helper", "ws")
	require.NoError(t, err)
	assert.Equal(t, "Helper", agent.Name)

	_, err = coord.CreateAgent(ctx, "", "ws")
	assert.Error(t, err)

	require.True(t, coord.CloseAgent(ctx, agent.ID))
	_, ok := dir.Get(ctx, agent.ID)
	assert.False(t, ok)
	assert.False(t, coord.CloseAgent(ctx, agent.ID))
}

func TestSnapshot(t *testing.T) {
	coord, dir := newTestCoordinator(t)
	ctx := context.Background()
	addAgent(t, dir, "a1", "Alice", "ws")
	addAgent(t, dir, "b1", "Bob", "ws")
	require.True(t, coord.Register(ctx, "a1", "s1"))
	require.True(t, coord.Register(ctx, "b1", ""))
	require.True(t, coord.Send(ctx, "a1", "b1", "hi"))

	snap := coord.Snapshot(ctx)
	require.Len(t, snap, 2)
	for _, row := range snap {
		if row.Agent.ID == "b1" {
			assert.Equal(t, 1, row.UnreadCount)
			assert.NotEmpty(t, row.LatestUnread)
		}
		require.NotNil(t, row.Session)
	}
}
