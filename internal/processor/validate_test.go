package processor

import "testing"

func TestValidateAudioFormat(t *testing.T) {
	pad := func(b []byte) []byte {
		out := make([]byte, 16)
		copy(out, b)
		return out
	}

	cases := []struct {
		name string
		buf  []byte
		ok   bool
	}{
		{"wav", append([]byte("RIFF\x24\x08\x00\x00WAVE"), 0, 0, 0, 0), true},
		{"mp3 id3", pad([]byte("ID3\x04")), true},
		{"mpeg frame", pad([]byte{0xFF, 0xFB, 0x90, 0x00}), true},
		{"m4a ftyp", pad([]byte{0x00, 0x00, 0x00, 0x20, 'f', 't', 'y', 'p'}), true},
		{"ogg", pad([]byte("OggS")), true},
		{"flac", pad([]byte("fLaC")), true},
		{"webm", pad([]byte{0x1A, 0x45, 0xDF, 0xA3}), true},
		{"text", []byte("hello, this is text data"), false},
		{"too small", []byte("RIFF"), false},
		{"empty", nil, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := validateAudioFormat(tc.buf)
			if tc.ok && err != nil {
				t.Fatalf("expected valid, got %v", err)
			}
			if !tc.ok && err == nil {
				t.Fatal("expected rejection")
			}
		})
	}
}
