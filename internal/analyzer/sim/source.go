package sim

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"
	"math/rand/v2"
	"os"

	"github.com/sigscope/sigscope/internal/errors"
)

// source produces baseband samples.
type source interface {
	read(dst []complex64) (int, error)
	close() error
}

// toneSource synthesizes a carrier plus complex gaussian noise.
type toneSource struct {
	rate   float64
	offset float64
	level  float64
	noise  float64
	phase  float64
	rng    *rand.Rand
}

func newToneSource(rate, offset, level, noise float64, seed uint64) *toneSource {
	return &toneSource{
		rate:   rate,
		offset: offset,
		level:  level,
		noise:  noise,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (s *toneSource) read(dst []complex64) (int, error) {
	step := 2 * math.Pi * s.offset / s.rate
	for i := range dst {
		re := s.level*math.Cos(s.phase) + s.noise*s.rng.NormFloat64()
		im := s.level*math.Sin(s.phase) + s.noise*s.rng.NormFloat64()
		dst[i] = complex(float32(re), float32(im))
		s.phase += step
		if s.phase > math.Pi {
			s.phase -= 2 * math.Pi
		} else if s.phase < -math.Pi {
			s.phase += 2 * math.Pi
		}
	}
	return len(dst), nil
}

func (s *toneSource) close() error { return nil }

// fileSource replays a raw interleaved little-endian float32 I/Q capture.
type fileSource struct {
	f    *os.File
	r    *bufio.Reader
	loop bool
	buf  [8]byte
}

func openFileSource(path string, loop bool) (*fileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.FileError(err, path, 0)
	}
	return &fileSource{f: f, r: bufio.NewReaderSize(f, 64<<10), loop: loop}, nil
}

func (s *fileSource) read(dst []complex64) (int, error) {
	for i := range dst {
		if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
				return i, err
			}
			if !s.loop {
				return i, io.EOF
			}
			if _, err := s.f.Seek(0, io.SeekStart); err != nil {
				return i, err
			}
			s.r.Reset(s.f)
			if _, err := io.ReadFull(s.r, s.buf[:]); err != nil {
				// an empty file cannot loop
				return i, io.EOF
			}
		}
		re := math.Float32frombits(binary.LittleEndian.Uint32(s.buf[0:4]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(s.buf[4:8]))
		dst[i] = complex(re, im)
	}
	return len(dst), nil
}

func (s *fileSource) close() error { return s.f.Close() }
