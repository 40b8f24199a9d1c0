package protocol

import (
	"testing"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCodecsCarryAddressedOffer(t *testing.T) {
	for _, name := range []string{CodecJSON, CodecMsgpack} {
		t.Run(name, func(t *testing.T) {
			codec, err := CodecByName(name)
			require.NoError(t, err)

			data, err := codec.Encode(EventOffer, Offer{
				RoomID:     "R1",
				FromUserID: "alice",
				ToUserID:   "bob",
				SDP:        SessionDescription{Type: "offer", SDP: "v=0"},
			})
			require.NoError(t, err)

			msg, err := codec.Decode(data)
			require.NoError(t, err)
			assert.Equal(t, EventOffer, msg.Event)

			ev, err := Decode(msg)
			require.NoError(t, err)
			offer, ok := ev.(*Offer)
			require.True(t, ok, "got %T", ev)
			assert.Equal(t, "bob", offer.ToUserID)
			assert.Equal(t, "v=0", offer.SDP.SDP)
		})
	}
}

func TestJSONFrameMatchesWireSchema(t *testing.T) {
	data, err := JSONCodec{}.Encode(EventJoinRoom, RoomRef{RoomID: "R1", UserID: "alice"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"event":"join-room","payload":{"roomId":"R1","userId":"alice"}}`, string(data))
}

func TestDecodeSnapshotVariants(t *testing.T) {
	msg, err := BuildMessage(JSONCodec{}, EventUserLeft, Snapshot{
		RoomID: "R1", UserID: "bob", UserCount: 1, Users: []string{"alice"},
	})
	require.NoError(t, err)

	ev, err := Decode(msg)
	require.NoError(t, err)
	left, ok := ev.(*UserLeft)
	require.True(t, ok)
	assert.Equal(t, []string{"alice"}, left.Users)
	assert.Equal(t, EventUserLeft, left.EventName())
}

func TestDecodeConnectivity(t *testing.T) {
	ev, err := Decode(&Message{Event: EventDisconnect})
	require.NoError(t, err)
	assert.Equal(t, &Connectivity{Connected: false}, ev)
}

func TestDecodeUnknownEvent(t *testing.T) {
	_, err := Decode(&Message{Event: "call-users"})
	assert.ErrorIs(t, err, ErrUnknownEvent)
}

func TestCodecForFrame(t *testing.T) {
	c, err := CodecForFrame(websocket.BinaryMessage)
	require.NoError(t, err)
	assert.Equal(t, CodecMsgpack, c.Name())

	_, err = CodecForFrame(websocket.PingMessage)
	assert.ErrorIs(t, err, ErrUnexpectedFrame)

	_, err = CodecByName("xml")
	assert.ErrorIs(t, err, ErrUnknownCodec)
}
