package storage

import (
	"errors"
	"fmt"
	"io"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"

	"github.com/realtime-ai/looper/pkg/audio"
)

// ErrInvalidWAV is returned by ImportWAV for unreadable or unsupported files.
var ErrInvalidWAV = errors.New("invalid wav file")

const wavFormatPCM = 1

// ExportWAV writes the raw 16-bit mono stream stored under name to w as a
// PCM WAV file.
func ExportWAV(b Backend, name string, w io.WriteSeeker, sampleRate int) error {
	f, err := b.Open(name, ModeRead)
	if err != nil {
		return err
	}
	defer f.Close()

	raw, err := io.ReadAll(f)
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}

	samples := audio.DecodeSamples(raw)
	data := make([]int, len(samples))
	for i, s := range samples {
		data[i] = int(s)
	}

	enc := wav.NewEncoder(w, sampleRate, 16, audio.Channels, wavFormatPCM)
	buf := &goaudio.IntBuffer{
		Format:         &goaudio.Format{NumChannels: audio.Channels, SampleRate: sampleRate},
		SourceBitDepth: 16,
		Data:           data,
	}
	if err := enc.Write(buf); err != nil {
		return fmt.Errorf("encode %s: %w", name, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("finish %s: %w", name, err)
	}
	return nil
}

// ImportWAV decodes a 16-bit PCM WAV file and stores its first channel under
// name as raw samples, replacing any previous content. It returns the sample
// rate of the source.
func ImportWAV(r io.ReadSeeker, b Backend, name string) (int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return 0, ErrInvalidWAV
	}
	if dec.BitDepth != 16 {
		return 0, fmt.Errorf("%w: %d-bit samples", ErrInvalidWAV, dec.BitDepth)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidWAV, err)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	samples := make([]int16, 0, len(buf.Data)/channels)
	for i := 0; i < len(buf.Data); i += channels {
		samples = append(samples, audio.ClampSum(int32(buf.Data[i])))
	}

	if err := b.Remove(name); err != nil {
		return 0, err
	}
	f, err := b.Open(name, ModeWrite)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	if _, err := f.Write(audio.EncodeSamples(samples)); err != nil {
		return 0, fmt.Errorf("write %s: %w", name, err)
	}
	return buf.Format.SampleRate, nil
}
