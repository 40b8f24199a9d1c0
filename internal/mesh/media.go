package mesh

import (
	"errors"
	"sync"

	pion "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
)

var ErrMediaStopped = errors.New("local media stopped")

// LocalMedia is the single local capture shared by every link. Each link
// references the same two tracks, so enabling or disabling a kind applies to
// all peers at once.
type LocalMedia struct {
	mu      sync.RWMutex
	video   *pion.TrackLocalStaticSample
	audio   *pion.TrackLocalStaticSample
	videoOn bool
	audioOn bool
	stopped bool
}

// NewLocalMedia creates a VP8 video track and an Opus audio track, both
// starting disabled.
func NewLocalMedia(streamID string) (*LocalMedia, error) {
	video, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeVP8, ClockRate: 90000},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}

	audio, err := pion.NewTrackLocalStaticSample(
		pion.RTPCodecCapability{MimeType: pion.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", streamID,
	)
	if err != nil {
		return nil, err
	}

	return &LocalMedia{video: video, audio: audio}, nil
}

// Tracks returns the tracks to attach to a new connection.
func (m *LocalMedia) Tracks() []pion.TrackLocal {
	return []pion.TrackLocal{m.video, m.audio}
}

// Enabled returns the current video and audio flags.
func (m *LocalMedia) Enabled() (video, audio bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.videoOn, m.audioOn
}

func (m *LocalMedia) SetVideo(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.videoOn = on && !m.stopped
}

func (m *LocalMedia) SetAudio(on bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.audioOn = on && !m.stopped
}

// WriteVideo forwards a sample to every peer while video is enabled. Samples
// written while disabled are dropped.
func (m *LocalMedia) WriteVideo(s media.Sample) error {
	return m.write(m.video, s, func() bool { return m.videoOn })
}

// WriteAudio forwards a sample to every peer while audio is enabled.
func (m *LocalMedia) WriteAudio(s media.Sample) error {
	return m.write(m.audio, s, func() bool { return m.audioOn })
}

func (m *LocalMedia) write(track *pion.TrackLocalStaticSample, s media.Sample, enabled func() bool) error {
	m.mu.RLock()
	stopped, on := m.stopped, enabled()
	m.mu.RUnlock()

	if stopped {
		return ErrMediaStopped
	}
	if !on {
		return nil
	}
	return track.WriteSample(s)
}

// Stop disables both kinds for good.
func (m *LocalMedia) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
	m.videoOn, m.audioOn = false, false
}

// Stopped reports whether Stop was called.
func (m *LocalMedia) Stopped() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stopped
}
