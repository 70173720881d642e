package event

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/worldsync/server/internal/core/ident"
	"github.com/worldsync/server/internal/net/packet"
)

func decodeFrame(t *testing.T, sender uint16, req []byte) packet.Message {
	t.Helper()
	m, err := packet.DecodeMessage(packet.Stamp(sender, req))
	require.NoError(t, err)
	require.NoError(t, packet.Validate(m))
	return m
}

func TestFromMessage(t *testing.T) {
	ref := ident.NewRef(5, 2)
	pos := mgl32.Vec3{1, 2, 3}

	cmd, ok, err := FromMessage(decodeFrame(t, 5, packet.MoveRequest(packet.MoveNorth, nil)), ref)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, SetMovement, cmd.Kind)
	assert.Equal(t, packet.MoveNorth, cmd.State)
	assert.False(t, cmd.HasPosition)
	assert.Equal(t, ref, cmd.Ref)

	cmd, _, err = FromMessage(decodeFrame(t, 5, packet.PortRequest(pos)), ref)
	require.NoError(t, err)
	assert.Equal(t, Teleport, cmd.Kind)
	assert.Equal(t, pos, cmd.Position)

	cmd, _, err = FromMessage(decodeFrame(t, 5, packet.SayRequest("hi")), ref)
	require.NoError(t, err)
	assert.Equal(t, Chat, cmd.Kind)
	assert.Equal(t, "hi", cmd.Text)

	cmd, _, err = FromMessage(decodeFrame(t, 5, packet.EmoteRequest(9)), ref)
	require.NoError(t, err)
	assert.Equal(t, Emote, cmd.Kind)
	assert.Equal(t, byte(9), cmd.Code)

	cmd, _, err = FromMessage(decodeFrame(t, 5, packet.EncodeRequest(packet.DomainSocial, packet.SocialEmote, nil)), ref)
	require.NoError(t, err)
	assert.Equal(t, Emote, cmd.Kind)
	assert.Zero(t, cmd.Code, "bare emote")

	_, ok, err = FromMessage(decodeFrame(t, 5, packet.JoinRequest(nil)), ref)
	require.NoError(t, err)
	assert.False(t, ok, "REQUEST is not a world mutation")
}

func TestFromMessageJoinedDefaults(t *testing.T) {
	cmd, ok, err := FromMessage(packet.Joined(4, nil), ident.NewRef(4, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, Spawn, cmd.Kind)
	assert.Equal(t, uint16(4), cmd.Record.ID)
	assert.Equal(t, packet.MoveStopped, cmd.Record.MovementState)

	rec := packet.EntityRecord{ID: 99, MovementState: packet.MoveWest, VehicleState: packet.VehicleCar}
	cmd, _, err = FromMessage(packet.Joined(4, &rec), ident.NewRef(4, 0))
	require.NoError(t, err)
	assert.Equal(t, uint16(4), cmd.Record.ID)
	assert.Equal(t, packet.VehicleCar, cmd.Record.VehicleState)
}

func TestFromMessageList(t *testing.T) {
	chunks := []packet.SnapshotChunk{{Present: true, MovementState: packet.MoveStopped}, {}}
	cmd, ok, err := FromMessage(packet.List(2, chunks), ident.NewRef(2, 0))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ReplaceList, cmd.Kind)
	assert.Len(t, cmd.Chunks, 2)

	bad := packet.Message{Domain: packet.DomainPlayer, Sub: packet.PlayerList, Payload: make([]byte, 15)}
	_, _, err = FromMessage(bad, 0)
	assert.ErrorIs(t, err, packet.ErrTruncatedPayload)
}

func TestFromMessageUnknown(t *testing.T) {
	_, _, err := FromMessage(packet.Message{Domain: 7}, 0)
	assert.ErrorIs(t, err, packet.ErrUnknownEvent)
	_, _, err = FromMessage(packet.Message{Domain: packet.DomainSocial, Sub: 9}, 0)
	assert.ErrorIs(t, err, packet.ErrUnknownEvent)
}
