// Package export encodes buffered samples into audio containers.
package export

import (
	"bytes"
	"io"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/peekapi/peekapi/internal/errors"
)

const (
	// BitDepth of encoded snapshots.
	BitDepth = 16
	// NumChannels of encoded snapshots.
	NumChannels = 1
	// HeaderSize is the size of the canonical RIFF/WAVE header written before the PCM data.
	HeaderSize = 44

	wavFormatPCM = 1
)

// EncodeWAV encodes mono 16-bit samples as an in-memory WAV file. An empty
// slice yields a valid 44-byte file with a zero-length data chunk.
func EncodeWAV(samples []int16, sampleRate int) ([]byte, error) {
	if sampleRate <= 0 {
		return nil, errors.Newf("invalid sample rate for WAV encoding: %d", sampleRate).
			Component("audiocore").
			Category(errors.CategoryValidation).
			Context("sample_rate", sampleRate).
			Build()
	}

	ws := &writeSeekBuffer{buf: make([]byte, 0, HeaderSize+len(samples)*BitDepth/8)}
	enc := wav.NewEncoder(ws, sampleRate, BitDepth, NumChannels, wavFormatPCM)

	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	// Write even when empty, the encoder emits the header on first write
	if err := enc.Write(&audio.IntBuffer{
		Data:           data,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: NumChannels},
		SourceBitDepth: BitDepth,
	}); err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "encode_wav").
			Context("samples", len(samples)).
			Build()
	}

	if err := enc.Close(); err != nil {
		return nil, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "finalize_wav").
			Build()
	}

	return ws.Bytes(), nil
}

// DecodeWAV reads a mono 16-bit WAV file and returns its samples and sample rate.
func DecodeWAV(data []byte) ([]int16, int, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	// IsValidFile rejects zero-length audio, which is a valid snapshot
	dec.ReadInfo()
	if err := dec.Err(); err != nil || dec.NumChans == 0 {
		if err == nil {
			err = errors.NewStd("missing fmt chunk")
		}
		return nil, 0, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "decode_wav").
			Context("size", len(data)).
			Build()
	}
	if dec.BitDepth != BitDepth || dec.NumChans != NumChannels {
		return nil, 0, errors.Newf("unsupported WAV format: %d-bit, %d channels", dec.BitDepth, dec.NumChans).
			Component("audiocore").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "decode_wav").
			Build()
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, errors.New(err).
			Component("audiocore").
			Category(errors.CategoryAudioEncoding).
			Context("operation", "decode_wav").
			Build()
	}

	// The decoder reads to EOF, trailing chunks are not samples
	n := min(len(buf.Data), dec.PCMSize/(BitDepth/8))
	samples := make([]int16, n)
	for i, v := range buf.Data[:n] {
		samples[i] = int16(v)
	}
	return samples, int(dec.SampleRate), nil
}

// writeSeekBuffer is an in-memory io.WriteSeeker. The WAV encoder seeks back
// to patch chunk sizes once the sample count is known.
type writeSeekBuffer struct {
	buf []byte
	pos int
}

func (w *writeSeekBuffer) Write(p []byte) (int, error) {
	end := w.pos + len(p)
	if end > len(w.buf) {
		if end > cap(w.buf) {
			grown := make([]byte, len(w.buf), max(end, 2*cap(w.buf)))
			copy(grown, w.buf)
			w.buf = grown
		}
		w.buf = w.buf[:end]
	}
	copy(w.buf[w.pos:], p)
	w.pos = end
	return len(p), nil
}

func (w *writeSeekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case io.SeekStart:
		abs = offset
	case io.SeekCurrent:
		abs = int64(w.pos) + offset
	case io.SeekEnd:
		abs = int64(len(w.buf)) + offset
	default:
		return 0, errors.NewStd("writeSeekBuffer: invalid whence")
	}
	if abs < 0 {
		return 0, errors.NewStd("writeSeekBuffer: negative position")
	}
	w.pos = int(abs)
	return abs, nil
}

// Bytes returns the written content.
func (w *writeSeekBuffer) Bytes() []byte {
	return w.buf
}
