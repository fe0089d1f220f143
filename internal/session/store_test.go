// SPDX-License-Identifier: MIT
package session

import (
	"path/filepath"
	"testing"
	"time"

	"ephys/internal/host"
	"ephys/internal/processor"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ host.SessionIndex = (*Store)(nil)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "db", "sessions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	clock := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time {
		clock = clock.Add(time.Second)
		return clock
	}
	return s
}

func TestBeginEnd(t *testing.T) {
	s := openTestStore(t)

	id, err := s.Begin("/data/rec1", "spectrum")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.True(t, sess.Active())
	assert.Equal(t, "spectrum", sess.Processor)
	assert.Equal(t, "/data/rec1", sess.Dir)

	require.NoError(t, s.End(id, 42))
	sess, err = s.Get(id)
	require.NoError(t, err)
	assert.False(t, sess.Active())
	assert.Equal(t, uint64(42), sess.Buffers)
	assert.True(t, sess.StoppedAt.After(sess.StartedAt))
}

func TestEndUnknown(t *testing.T) {
	s := openTestStore(t)
	assert.ErrorIs(t, s.End("nope", 1), ErrNotFound)
}

func TestListOrdered(t *testing.T) {
	s := openTestStore(t)

	var ids []string
	for _, dir := range []string{"a", "b", "c"} {
		id, err := s.Begin(dir, "template")
		require.NoError(t, err)
		ids = append(ids, id)
	}

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 3)
	for i, sess := range sessions {
		assert.Equal(t, ids[i], sess.ID)
	}
}

func TestReopenKeepsSessions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.db")
	s, err := Open(path)
	require.NoError(t, err)
	id, err := s.Begin("dir", "gate")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	sess, err := s.Get(id)
	require.NoError(t, err)
	assert.Equal(t, "gate", sess.Processor)
}

func TestStoreWithNode(t *testing.T) {
	s := openTestStore(t)
	n := host.NewNode(processor.NewRegistry(), host.WithSessionIndex(s))
	streams := []host.Stream{{ID: 1, SampleRate: 30000, Channels: 8, Enabled: true}}
	require.NoError(t, n.UpdateSettings(streams))
	require.NoError(t, n.SetProcessor(processor.TemplateName))

	dir := t.TempDir()
	require.NoError(t, n.StartAcquisition())
	require.NoError(t, n.StartRecording(dir))
	require.NoError(t, n.Process(host.NewBlock(streams, 32)))
	require.NoError(t, n.StopAcquisition())

	sessions, err := s.List()
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, dir, sessions[0].Dir)
	assert.Equal(t, processor.TemplateName, sessions[0].Processor)
	assert.Equal(t, uint64(1), sessions[0].Buffers)
	assert.False(t, sessions[0].Active())
}
