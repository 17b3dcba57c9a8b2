package channelengine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeOne_RoundTrip(t *testing.T) {
	payload := []byte("hello window")
	wire := encodeFrame(0, 42, 0xDEADBEEF, payload)
	require.Len(t, wire, HeaderSize+len(payload))

	f, err := decodeOne(wire)
	require.NoError(t, err)
	assert.Equal(t, uint16(42), f.Seqno)
	assert.Equal(t, uint32(0xDEADBEEF), f.TimestampMs)
	assert.Equal(t, payload, f.Payload)
	assert.Equal(t, Reliable, f.Channel())
	assert.False(t, f.IsAck())
}

func TestDecodeOne_FlagsSelectChannelAndAck(t *testing.T) {
	unreliable := encodeFrame(flagUnreliable, 1, 0, nil)
	f, err := decodeOne(unreliable)
	require.NoError(t, err)
	assert.Equal(t, Unreliable, f.Channel())
	assert.False(t, f.IsAck())

	ack := encodeFrame(flagAck, 7, 0, nil)
	f, err = decodeOne(ack)
	require.NoError(t, err)
	assert.True(t, f.IsAck())
	assert.Equal(t, uint16(7), f.Seqno)
}

func TestDecodeOne_MalformedHeader(t *testing.T) {
	_, err := decodeOne([]byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrMalformedHeader)

	short := encodeFrame(0, 1, 0, []byte("abc"))
	_, err = decodeOne(short[:len(short)-1])
	assert.ErrorIs(t, err, ErrMalformedHeader)
}

func TestDecodeStream_CoalescedFramesAndRemainder(t *testing.T) {
	a := encodeFrame(0, 1, 100, []byte("aa"))
	b := encodeFrame(flagAck, 2, 200, nil)
	c := encodeFrame(0, 3, 300, []byte("ccc"))
	joined := append(append(append([]byte{}, a...), b...), c...)

	// Trim the trailing frame so it is only partially present.
	incomplete := joined[:len(joined)-2]

	frames, remainder := decodeStream(incomplete)
	require.Len(t, frames, 2)
	assert.Equal(t, uint16(1), frames[0].Seqno)
	assert.Equal(t, uint16(2), frames[1].Seqno)
	assert.True(t, frames[1].IsAck())
	assert.NotEmpty(t, remainder)

	rejoined := append(remainder, joined[len(joined)-2:]...)
	frames2, remainder2 := decodeStream(rejoined)
	require.Len(t, frames2, 1)
	assert.Equal(t, uint16(3), frames2[0].Seqno)
	assert.Empty(t, remainder2)
}

func TestDecodeStream_EmptyAndShortInput(t *testing.T) {
	frames, remainder := decodeStream(nil)
	assert.Nil(t, frames)
	assert.Empty(t, remainder)

	frames, remainder = decodeStream([]byte{1, 2, 3})
	assert.Nil(t, frames)
	assert.Equal(t, []byte{1, 2, 3}, remainder)
}
