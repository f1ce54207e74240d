package rtc

import (
	"errors"
	"io"
	"os"
	"time"

	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"
)

// sampleSource yields paced media samples until io.EOF.
type sampleSource interface {
	Next() (media.Sample, error)
	Close() error
}

type sourceFactory func() (sampleSource, error)

// ivfSource reads VP8 frames from an IVF file.
type ivfSource struct {
	f     *os.File
	r     *ivfreader.IVFReader
	frame time.Duration
}

func openIVF(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, h, err := ivfreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	frame := time.Second / 30
	if h.TimebaseDenominator > 0 {
		frame = time.Duration(float64(time.Second) * float64(h.TimebaseNumerator) / float64(h.TimebaseDenominator))
	}
	return &ivfSource{f: f, r: r, frame: frame}, nil
}

func (s *ivfSource) Next() (media.Sample, error) {
	frame, _, err := s.r.ParseNextFrame()
	if err != nil {
		return media.Sample{}, err
	}
	return media.Sample{Data: frame, Duration: s.frame}, nil
}

func (s *ivfSource) Close() error { return s.f.Close() }

// oggSource reads Opus pages from an Ogg file.
type oggSource struct {
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

func openOgg(path string) (sampleSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	r, _, err := oggreader.NewWith(f)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &oggSource{f: f, r: r}, nil
}

func (s *oggSource) Next() (media.Sample, error) {
	for {
		page, header, err := s.r.ParseNextPage()
		if err != nil {
			return media.Sample{}, err
		}
		// Header pages carry no audio and no granule advance.
		if header.GranulePosition <= s.lastGranule {
			continue
		}
		count := header.GranulePosition - s.lastGranule
		s.lastGranule = header.GranulePosition
		return media.Sample{Data: page, Duration: time.Duration(count) * time.Second / 48000}, nil
	}
}

func (s *oggSource) Close() error { return s.f.Close() }

// nullSource produces placeholder samples, frames of them before EOF when
// frames is positive.
type nullSource struct {
	frames int
	sent   int
	every  time.Duration
}

func (s *nullSource) Next() (media.Sample, error) {
	if s.frames > 0 && s.sent >= s.frames {
		return media.Sample{}, io.EOF
	}
	s.sent++
	return media.Sample{Data: []byte{0x0, 0xff, 0xff, 0xff, 0xff}, Duration: s.every}, nil
}

func (s *nullSource) Close() error { return nil }

func fileFactory(path string, open func(string) (sampleSource, error)) sourceFactory {
	return func() (sampleSource, error) { return open(path) }
}

func nullFactory(frames int, every time.Duration) sourceFactory {
	return func() (sampleSource, error) { return &nullSource{frames: frames, every: every}, nil }
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
