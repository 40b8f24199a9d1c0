package mesh

import (
	"testing"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalMediaToggles(t *testing.T) {
	m, err := NewLocalMedia("alice")
	require.NoError(t, err)
	assert.Len(t, m.Tracks(), 2)

	video, audio := m.Enabled()
	assert.False(t, video)
	assert.False(t, audio)

	m.SetVideo(true)
	video, audio = m.Enabled()
	assert.True(t, video)
	assert.False(t, audio)

	sample := media.Sample{Data: []byte{0x01}, Duration: 20 * time.Millisecond}
	assert.NoError(t, m.WriteVideo(sample))
	assert.NoError(t, m.WriteAudio(sample))

	m.Stop()
	m.SetAudio(true)
	video, audio = m.Enabled()
	assert.False(t, video)
	assert.False(t, audio)
	assert.ErrorIs(t, m.WriteVideo(sample), ErrMediaStopped)
}
