// ABOUTME: File-backed capture source for MP3 and FLAC
// ABOUTME: Decodes, downmixes to the relay channel count and loops in real time
package capture

import (
	"encoding/binary"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/hajimehoshi/go-mp3"
	"github.com/harperreed/audiorelay/pkg/audio"
	"github.com/mewkiz/flac"
)

// sampleDecoder yields interleaved 16-bit samples and can restart from the top
type sampleDecoder interface {
	sampleRate() int
	channels() int
	// read fills dst with interleaved samples; io.EOF at end of file
	read(dst []int16) (int, error)
	rewind() error
}

// File plays an audio file as if it were captured live
type File struct {
	path string

	file    *os.File
	decoder sampleDecoder
	format  audio.Format
	pacer   *pacer
	scratch []int16

	done      chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
}

// NewFile creates a file source. The file is opened on Open.
func NewFile(path string) *File {
	return &File{path: path}
}

// Open opens and validates the file. Its sample rate must match the format;
// the relay does not resample.
func (s *File) Open(format audio.Format) error {
	if err := format.Validate(); err != nil {
		return err
	}

	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("failed to open audio file: %w", err)
	}

	var dec sampleDecoder
	switch ext := strings.ToLower(filepath.Ext(s.path)); ext {
	case ".mp3":
		dec, err = newMP3Decoder(f)
	case ".flac":
		dec, err = newFLACDecoder(f)
	default:
		err = fmt.Errorf("unsupported audio format: %s (supported: .mp3, .flac)", ext)
	}
	if err != nil {
		f.Close()
		return err
	}

	if dec.sampleRate() != format.SampleRate {
		f.Close()
		return fmt.Errorf("file sample rate %dHz does not match relay rate %dHz", dec.sampleRate(), format.SampleRate)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.file = f
	s.decoder = dec
	s.format = format
	s.pacer = newPacer(format)
	s.done = make(chan struct{})
	s.closeOnce = sync.Once{}

	log.Printf("Loaded %s: %dHz %dch", filepath.Base(s.path), dec.sampleRate(), dec.channels())
	return nil
}

// Read fills frame with the next decoded samples, looping at end of file
func (s *File) Read(frame []byte) (int, error) {
	s.mu.Lock()
	dec, done, p, format := s.decoder, s.done, s.pacer, s.format
	s.mu.Unlock()

	if dec == nil {
		return 0, ErrNotOpen
	}

	select {
	case <-done:
		return 0, ErrClosed
	default:
	}

	outSamples := len(frame) / format.BytesPerSample()
	inChannels := dec.channels()
	need := outSamples * inChannels
	if cap(s.scratch) < need {
		s.scratch = make([]int16, need)
	}
	in := s.scratch[:need]

	got, idle := 0, 0
	for got < need {
		n, err := dec.read(in[got:])
		got += n
		if n > 0 {
			idle = 0
		}
		if err == io.EOF {
			idle++
			if idle > 1 {
				return 0, fmt.Errorf("no audio decoded from %s: %w", filepath.Base(s.path), io.ErrUnexpectedEOF)
			}
			if rerr := dec.rewind(); rerr != nil {
				return 0, fmt.Errorf("failed to rewind: %w", rerr)
			}
			continue
		}
		if err != nil {
			return 0, err
		}
	}

	n := mixInto(frame, in, inChannels, format.Channels)
	if !p.wait(n, done) {
		return 0, ErrClosed
	}
	return n, nil
}

// Close releases the file and unblocks a pending Read
func (s *File) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.done != nil {
		s.closeOnce.Do(func() { close(s.done) })
	}
	s.decoder = nil
	if s.file != nil {
		err := s.file.Close()
		s.file = nil
		return err
	}
	return nil
}

// mixInto converts interleaved input samples to the output channel count and
// writes them little-endian into frame. Downmixing averages channels.
func mixInto(frame []byte, in []int16, inChannels, outChannels int) int {
	off := 0
	for i := 0; i+inChannels <= len(in); i += inChannels {
		var sum int32
		for ch := 0; ch < inChannels; ch++ {
			sum += int32(in[i+ch])
		}
		mono := audio.ClampInt16(sum / int32(inChannels))

		for ch := 0; ch < outChannels; ch++ {
			v := mono
			if inChannels == outChannels {
				v = in[i+ch]
			}
			audio.PutSample16(frame[off:], v)
			off += 2
		}
	}
	return off
}

// mp3Decoder wraps go-mp3, which always yields 16-bit stereo
type mp3Decoder struct {
	file    *os.File
	decoder *mp3.Decoder
	buf     []byte
}

func newMP3Decoder(f *os.File) (*mp3Decoder, error) {
	d, err := mp3.NewDecoder(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode MP3: %w", err)
	}
	return &mp3Decoder{file: f, decoder: d}, nil
}

func (d *mp3Decoder) sampleRate() int { return d.decoder.SampleRate() }
func (d *mp3Decoder) channels() int   { return 2 }

func (d *mp3Decoder) read(dst []int16) (int, error) {
	need := len(dst) * 2
	if cap(d.buf) < need {
		d.buf = make([]byte, need)
	}
	buf := d.buf[:need]

	n, err := io.ReadFull(d.decoder, buf)
	samples := n / 2
	for i := 0; i < samples; i++ {
		dst[i] = int16(binary.LittleEndian.Uint16(buf[i*2:]))
	}
	if err == io.ErrUnexpectedEOF {
		err = io.EOF
	}
	return samples, err
}

func (d *mp3Decoder) rewind() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	dec, err := mp3.NewDecoder(d.file)
	if err != nil {
		return err
	}
	d.decoder = dec
	return nil
}

// flacDecoder wraps mewkiz/flac, scaling any bit depth to 16 bits
type flacDecoder struct {
	file     *os.File
	stream   *flac.Stream
	rate     int
	nch      int
	bitDepth int
	pending  []int16
}

func newFLACDecoder(f *os.File) (*flacDecoder, error) {
	stream, err := flac.New(f)
	if err != nil {
		return nil, fmt.Errorf("failed to decode FLAC: %w", err)
	}
	return &flacDecoder{
		file:     f,
		stream:   stream,
		rate:     int(stream.Info.SampleRate),
		nch:      int(stream.Info.NChannels),
		bitDepth: int(stream.Info.BitsPerSample),
	}, nil
}

func (d *flacDecoder) sampleRate() int { return d.rate }
func (d *flacDecoder) channels() int   { return d.nch }

func (d *flacDecoder) read(dst []int16) (int, error) {
	written := 0
	for written < len(dst) {
		if len(d.pending) == 0 {
			frame, err := d.stream.ParseNext()
			if err != nil {
				return written, err
			}
			d.pending = d.pending[:0]
			for i := 0; i < int(frame.BlockSize); i++ {
				for ch := 0; ch < d.nch; ch++ {
					d.pending = append(d.pending, d.scale(frame.Subframes[ch].Samples[i]))
				}
			}
		}
		n := copy(dst[written:], d.pending)
		d.pending = d.pending[n:]
		written += n
	}
	return written, nil
}

func (d *flacDecoder) scale(sample int32) int16 {
	shift := d.bitDepth - 16
	if shift > 0 {
		return int16(sample >> shift)
	}
	return int16(sample << -shift)
}

func (d *flacDecoder) rewind() error {
	if _, err := d.file.Seek(0, io.SeekStart); err != nil {
		return err
	}
	stream, err := flac.New(d.file)
	if err != nil {
		return err
	}
	d.stream = stream
	d.pending = nil
	return nil
}
