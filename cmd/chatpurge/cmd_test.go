package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/p-blackswan/chatpurge/internal/journal"
	"github.com/p-blackswan/chatpurge/internal/purge"
)

func TestCommandStructure(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "history", "version"} {
		assert.True(t, names[want], "missing %s command", want)
	}
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	versionCmd.SetOut(&out)
	versionCmd.Run(versionCmd, nil)
	assert.Contains(t, out.String(), "chatpurge "+Version)
	assert.Contains(t, out.String(), "Go Version:")
}

func TestProgressLogger(t *testing.T) {
	var buf bytes.Buffer
	p := newProgressLogger(zerolog.New(&buf).Level(zerolog.InfoLevel))

	p.Publish(purge.Snapshot{State: purge.Running, TotalProcessed: 3})
	p.Publish(purge.Snapshot{State: purge.Running, TotalProcessed: 3, TotalDeleted: 1})
	p.Publish(purge.Snapshot{State: purge.Paused, TotalProcessed: 3, TotalDeleted: 1})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "unchanged state logs at debug")
	assert.Contains(t, lines[0], `"state":"running"`)
	assert.Contains(t, lines[1], `"state":"paused"`)
}

func sampleRuns() []*journal.Run {
	started := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).UnixMilli()
	return []*journal.Run{
		{
			ID: "0b6f3f8e-2c1a-4d5e-9f00-123456789abc", Backend: "discord", ChannelID: "111",
			State: "stopped", Reason: purge.ReasonCompleted, TotalDeleted: 2, TotalProcessed: 3,
			StartedAt: started, FinishedAt: started + 1000,
		},
		{
			ID: "short", Backend: "slack", ChannelID: "C1",
			State: "running", StartedAt: started,
		},
	}
}

func TestWriteHistoryTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistoryTable(&buf, sampleRuns()))

	out := buf.String()
	assert.Contains(t, out, "RUN")
	assert.Contains(t, out, "0b6f3f8e ")
	assert.Contains(t, out, "2026-03-01T12:00:00Z")
	assert.Contains(t, out, purge.ReasonCompleted)
	assert.Contains(t, out, "(unfinished)")
}

func TestWriteHistoryTable_Empty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistoryTable(&buf, nil))
	assert.Equal(t, "no runs recorded\n", buf.String())
}

func TestWriteHistoryJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeHistoryJSON(&buf, sampleRuns()))

	var decoded []journal.Run
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 2)
	assert.Equal(t, "discord", decoded[0].Backend)

	buf.Reset()
	require.NoError(t, writeHistoryJSON(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())
}

func seededJournal(t *testing.T) (*journal.Journal, string) {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"), zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })

	ctx := context.Background()
	rec, err := j.StartRun(ctx, "discord", "chan-1", "me")
	require.NoError(t, err)
	rec.ObserveDelete(purge.Message{ID: "m3"}, purge.OutcomeDeleted, nil)
	rec.ObserveDelete(purge.Message{ID: "m2"}, purge.OutcomeForbidden, errors.New("403 Missing Access"))
	require.NoError(t, rec.Finish(ctx, purge.Snapshot{
		TotalDeleted: 1, TotalProcessed: 2, State: purge.Stopped, Reason: purge.ReasonCompleted,
	}))
	return j, rec.RunID()
}

func TestShowRun_Table(t *testing.T) {
	j, id := seededJournal(t)

	var buf bytes.Buffer
	require.NoError(t, showRun(context.Background(), &buf, j, id, false))

	out := buf.String()
	assert.Contains(t, out, id)
	assert.Contains(t, out, "1 of 2 processed")
	assert.Contains(t, out, purge.ReasonCompleted)
	assert.Contains(t, out, "MESSAGE")
	assert.Contains(t, out, "m3")
	assert.Contains(t, out, "Missing Access")
	assert.NotContains(t, out, "(unfinished)")
}

func TestShowRun_JSON(t *testing.T) {
	j, id := seededJournal(t)

	var buf bytes.Buffer
	require.NoError(t, showRun(context.Background(), &buf, j, id, true))

	var detail runDetail
	require.NoError(t, json.Unmarshal(buf.Bytes(), &detail))
	require.NotNil(t, detail.Run)
	assert.Equal(t, id, detail.Run.ID)
	require.Len(t, detail.Deletions, 2)
	assert.Equal(t, "m3", detail.Deletions[0].MessageID)
	assert.Equal(t, "forbidden", detail.Deletions[1].Outcome)
}

func TestShowRun_Unknown(t *testing.T) {
	j, _ := seededJournal(t)

	var buf bytes.Buffer
	err := showRun(context.Background(), &buf, j, "missing", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
