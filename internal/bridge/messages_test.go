package bridge

import (
	"testing"

	"github.com/bytedance/sonic"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/barkit/barlink/shmring"
	"github.com/barkit/barlink/snapshot"
)

func TestNewSnapshotEvent(t *testing.T) {
	var s snapshot.Snapshot
	s.Timestamp = 1234
	s.Monitor.Num = 1
	s.Monitor.Width = 2560
	s.Monitor.Tags[0].Selected = true
	s.Monitor.Tags[4].Urgent = true
	s.Monitor.ClientName = "firefox"
	s.Monitor.LayoutSymbol = "[]="
	s.System.CPUAverage = 42.5
	s.System.Charging = true

	ev := newSnapshotEvent(shmring.Update{Snapshot: s, Seq: 9, Skipped: 2})

	assert.Equal(t, msgSnapshot, ev.Type)
	assert.Equal(t, uint64(9), ev.Seq)
	assert.Equal(t, uint64(2), ev.Skipped)
	assert.Equal(t, uint64(1234), ev.Timestamp)
	assert.Equal(t, int32(2560), ev.Monitor.Width)
	assert.Len(t, ev.Monitor.Tags, snapshot.MaxTags)
	assert.True(t, ev.Monitor.Tags[0].Selected)
	assert.True(t, ev.Monitor.Tags[4].Urgent)
	assert.Equal(t, "firefox", ev.Monitor.ClientName)
	assert.True(t, ev.System.Charging)

	data, err := sonic.Marshal(ev)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"snapshot"`)
	assert.Contains(t, string(data), `"client_name":"firefox"`)
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		msg     clientMessage
		want    snapshot.CommandKind
		wantErr bool
	}{
		{"view tag", clientMessage{Type: "command", Kind: "view_tag", Arg: 1 << 2, Monitor: 0}, snapshot.CommandViewTag, false},
		{"toggle tag", clientMessage{Type: "command", Kind: "toggle_tag", Arg: 1, Monitor: 1}, snapshot.CommandToggleTag, false},
		{"set layout", clientMessage{Type: "command", Kind: "set_layout", Arg: 2, Monitor: 0}, snapshot.CommandSetLayout, false},
		{"unknown", clientMessage{Type: "command", Kind: "quit"}, snapshot.CommandNone, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd, err := parseCommand(tt.msg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, cmd.Kind)
			assert.Equal(t, tt.msg.Arg, cmd.Arg)
			assert.Equal(t, tt.msg.Monitor, cmd.Monitor)
			assert.NotZero(t, cmd.Timestamp)
		})
	}
}
