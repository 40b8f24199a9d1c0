package mesh

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// oggPageDuration is the frame length Opus encoders write by default.
const oggPageDuration = 20 * time.Millisecond

// PlayIVF streams a VP8 IVF file into the local video track at its native
// frame rate until ctx is done or the file ends.
func PlayIVF(ctx context.Context, path string, m *LocalMedia) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, header, err := ivfreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ivf header: %w", err)
	}
	if header.TimebaseDenominator == 0 {
		return fmt.Errorf("ivf %s: zero timebase", path)
	}

	frameDuration := time.Duration(float64(header.TimebaseNumerator) / float64(header.TimebaseDenominator) * float64(time.Second))
	ticker := time.NewTicker(frameDuration)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		frame, _, err := reader.ParseNextFrame()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		if err := m.WriteVideo(media.Sample{Data: frame, Duration: frameDuration}); err != nil {
			return err
		}
	}
}

// PlayOgg streams an Opus Ogg file into the local audio track.
func PlayOgg(ctx context.Context, path string, m *LocalMedia) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	reader, _, err := oggreader.NewWith(f)
	if err != nil {
		return fmt.Errorf("read ogg header: %w", err)
	}

	ticker := time.NewTicker(oggPageDuration)
	defer ticker.Stop()

	var lastGranule uint64
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		page, header, err := reader.ParseNextPage()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		samples := header.GranulePosition - lastGranule
		lastGranule = header.GranulePosition
		duration := time.Duration(float64(samples)/48000*1000) * time.Millisecond

		if err := m.WriteAudio(media.Sample{Data: page, Duration: duration}); err != nil {
			return err
		}
	}
}
