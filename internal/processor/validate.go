package processor

import (
	"bytes"
	"fmt"
)

// validateAudioFormat checks the buffer's magic bytes against known audio
// containers. Invalid input is fatal; there is no point uploading bytes the
// transcription API cannot read.
func validateAudioFormat(buf []byte) error {
	if len(buf) < 12 {
		return fmt.Errorf("file too small to be an audio container (%d bytes)", len(buf))
	}

	switch {
	case bytes.HasPrefix(buf, []byte("RIFF")) && bytes.Equal(buf[8:12], []byte("WAVE")):
		return nil // wav
	case bytes.HasPrefix(buf, []byte("ID3")):
		return nil // mp3 with ID3 tag
	case buf[0] == 0xFF && (buf[1]&0xE0) == 0xE0:
		return nil // raw mpeg audio frame
	case bytes.Equal(buf[4:8], []byte("ftyp")):
		return nil // mp4/m4a
	case bytes.HasPrefix(buf, []byte("OggS")):
		return nil // ogg
	case bytes.HasPrefix(buf, []byte("fLaC")):
		return nil // flac
	case bytes.HasPrefix(buf, []byte{0x1A, 0x45, 0xDF, 0xA3}):
		return nil // webm/matroska
	}
	return fmt.Errorf("unrecognized audio format (magic bytes %x)", buf[:4])
}
