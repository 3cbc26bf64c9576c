// Package wav implements the session recording format: 32-bit float PCM WAV
// at the engine sample rate, mono or interleaved stereo. Files are append-open
// when they already exist so an interrupted recorder can resume mid-session,
// and are finalised with patched chunk sizes plus an fsync of both the file
// and its parent directory.
package wav

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
)

const (
	formatPCM       = 1
	formatIEEEFloat = 3

	// headerSize is the canonical RIFF/fmt/data preamble this package writes.
	headerSize = 44
)

// ErrFinalized is returned when writing to a finalised [Writer].
var ErrFinalized = errors.New("wav: writer is finalized")

// Writer streams float32 samples into a WAV file. Not safe for concurrent
// use; the recorder owns its writer exclusively.
type Writer struct {
	f          *os.File
	bw         *bufio.Writer
	path       string
	sampleRate int
	channels   int
	dataBytes  int64
	finalized  bool
}

// Create creates (truncating) a float WAV file with the given channel count.
func Create(path string, sampleRate, channels int) (*Writer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("wav: create %s: %w", path, err)
	}
	w := &Writer{
		f:          f,
		bw:         bufio.NewWriter(f),
		path:       path,
		sampleRate: sampleRate,
		channels:   channels,
	}
	if err := w.writeHeader(); err != nil {
		f.Close()
		return nil, err
	}
	return w, nil
}

// Append opens an existing float WAV file for appending. The channel count
// and sample rate are read from the header; new samples must match.
func Append(path string) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("wav: open %s: %w", path, err)
	}

	sampleRate, channels, dataBytes, err := readHeader(f)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: parse %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekEnd); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav: seek %s: %w", path, err)
	}

	return &Writer{
		f:          f,
		bw:         bufio.NewWriter(f),
		path:       path,
		sampleRate: sampleRate,
		channels:   channels,
		dataBytes:  dataBytes,
	}, nil
}

// Channels reports the channel count of the file.
func (w *Writer) Channels() int { return w.channels }

// WriteSamples appends interleaved float32 samples.
func (w *Writer) WriteSamples(samples []float32) error {
	if w.finalized {
		return ErrFinalized
	}
	var buf [4]byte
	for _, s := range samples {
		binary.LittleEndian.PutUint32(buf[:], math.Float32bits(s))
		if _, err := w.bw.Write(buf[:]); err != nil {
			return fmt.Errorf("wav: write: %w", err)
		}
	}
	w.dataBytes += int64(len(samples)) * 4
	return nil
}

// Flush pushes buffered samples to the OS. Chunk sizes in the header are only
// corrected on Finalize.
func (w *Writer) Flush() error {
	if w.finalized {
		return ErrFinalized
	}
	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("wav: flush: %w", err)
	}
	return nil
}

// Finalize flushes, patches the RIFF and data chunk sizes, and fsyncs the file
// and its parent directory. The writer is unusable afterwards; calling
// Finalize again is a no-op.
func (w *Writer) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true

	if err := w.bw.Flush(); err != nil {
		return fmt.Errorf("wav: flush: %w", err)
	}
	if err := w.patchSizes(); err != nil {
		return err
	}
	if err := w.f.Sync(); err != nil {
		return fmt.Errorf("wav: sync: %w", err)
	}
	if err := w.f.Close(); err != nil {
		return fmt.Errorf("wav: close: %w", err)
	}
	syncDir(w.path)
	return nil
}

func (w *Writer) writeHeader() error {
	var hdr bytes.Buffer
	hdr.WriteString("RIFF")
	binary.Write(&hdr, binary.LittleEndian, uint32(headerSize-8))
	hdr.WriteString("WAVE")

	hdr.WriteString("fmt ")
	binary.Write(&hdr, binary.LittleEndian, uint32(16))
	binary.Write(&hdr, binary.LittleEndian, uint16(formatIEEEFloat))
	binary.Write(&hdr, binary.LittleEndian, uint16(w.channels))
	binary.Write(&hdr, binary.LittleEndian, uint32(w.sampleRate))
	binary.Write(&hdr, binary.LittleEndian, uint32(w.sampleRate*w.channels*4))
	binary.Write(&hdr, binary.LittleEndian, uint16(w.channels*4))
	binary.Write(&hdr, binary.LittleEndian, uint16(32))

	hdr.WriteString("data")
	binary.Write(&hdr, binary.LittleEndian, uint32(0))

	if _, err := w.bw.Write(hdr.Bytes()); err != nil {
		return fmt.Errorf("wav: write header: %w", err)
	}
	return nil
}

func (w *Writer) patchSizes() error {
	var buf [4]byte

	binary.LittleEndian.PutUint32(buf[:], uint32(int64(headerSize-8)+w.dataBytes))
	if _, err := w.f.WriteAt(buf[:], 4); err != nil {
		return fmt.Errorf("wav: patch riff size: %w", err)
	}

	binary.LittleEndian.PutUint32(buf[:], uint32(w.dataBytes))
	if _, err := w.f.WriteAt(buf[:], 40); err != nil {
		return fmt.Errorf("wav: patch data size: %w", err)
	}
	return nil
}

// readHeader parses the canonical preamble written by this package and
// returns (sampleRate, channels, dataBytes).
func readHeader(r io.ReadSeeker) (int, int, int64, error) {
	var hdr [headerSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, 0, 0, err
	}
	if string(hdr[0:4]) != "RIFF" || string(hdr[8:12]) != "WAVE" || string(hdr[12:16]) != "fmt " {
		return 0, 0, 0, errors.New("not a canonical WAV header")
	}
	format := binary.LittleEndian.Uint16(hdr[20:22])
	if format != formatIEEEFloat {
		return 0, 0, 0, fmt.Errorf("unsupported format tag %d", format)
	}
	channels := int(binary.LittleEndian.Uint16(hdr[22:24]))
	sampleRate := int(binary.LittleEndian.Uint32(hdr[24:28]))
	if string(hdr[36:40]) != "data" {
		return 0, 0, 0, errors.New("data chunk not at canonical offset")
	}
	dataBytes := int64(binary.LittleEndian.Uint32(hdr[40:44]))

	// A crashed writer leaves a zero data size; recover it from the file size.
	if dataBytes == 0 {
		end, err := r.Seek(0, io.SeekEnd)
		if err != nil {
			return 0, 0, 0, err
		}
		if end > headerSize {
			dataBytes = end - headerSize
		}
		if _, err := r.Seek(headerSize, io.SeekStart); err != nil {
			return 0, 0, 0, err
		}
	}
	return sampleRate, channels, dataBytes, nil
}

func syncDir(path string) {
	dir, err := os.Open(filepath.Dir(path))
	if err != nil {
		return
	}
	defer dir.Close()
	_ = dir.Sync()
}

// EncodeS16LE wraps mono signed 16-bit little-endian PCM bytes in a complete
// WAV container, the payload shape batch transcription endpoints accept.
func EncodeS16LE(pcm []byte, sampleRate int) []byte {
	buf := new(bytes.Buffer)

	buf.WriteString("RIFF")
	binary.Write(buf, binary.LittleEndian, uint32(36+len(pcm)))
	buf.WriteString("WAVE")

	buf.WriteString("fmt ")
	binary.Write(buf, binary.LittleEndian, uint32(16))
	binary.Write(buf, binary.LittleEndian, uint16(formatPCM))
	binary.Write(buf, binary.LittleEndian, uint16(1))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate))
	binary.Write(buf, binary.LittleEndian, uint32(sampleRate*2))
	binary.Write(buf, binary.LittleEndian, uint16(2))
	binary.Write(buf, binary.LittleEndian, uint16(16))

	buf.WriteString("data")
	binary.Write(buf, binary.LittleEndian, uint32(len(pcm)))
	buf.Write(pcm)

	return buf.Bytes()
}
