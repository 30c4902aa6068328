package tmod

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func randomBytes(t *testing.T, n int, seed int64) []byte {
	t.Helper()
	b := make([]byte, n)
	_, err := rand.New(rand.NewSource(seed)).Read(b)
	require.NoError(t, err)
	return b
}

func TestCompressDecompress(t *testing.T) {
	data := bytes.Repeat([]byte("terraria "), 500)
	for _, level := range []Level{LevelOptimal, LevelFastest, LevelSmallest, LevelNone} {
		t.Run(level.String(), func(t *testing.T) {
			compressed, err := Compress(data, level)
			require.NoError(t, err)

			got, err := Decompress(compressed, len(data))
			require.NoError(t, err)
			assert.Equal(t, data, got)
		})
	}
}

func TestDecompress_WrongLength(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 4096)
	compressed, err := Compress(data, LevelOptimal)
	require.NoError(t, err)

	_, err = Decompress(compressed, len(data)+1)
	assert.ErrorIs(t, err, ErrCorruptEntry)

	_, err = Decompress(compressed, len(data)-1)
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecompress_TrailingInput(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 4096)
	compressed, err := Compress(data, LevelOptimal)
	require.NoError(t, err)

	padded := append(append([]byte{}, compressed...), 1, 2, 3, 4)
	_, err = Decompress(padded, len(data))
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestDecompress_Garbage(t *testing.T) {
	_, err := Decompress([]byte{0xff, 0xff, 0xff, 0xff}, 10)
	assert.ErrorIs(t, err, ErrCorruptEntry)
}

func TestParseLevel(t *testing.T) {
	tests := map[string]Level{
		"":         LevelOptimal,
		"optimal":  LevelOptimal,
		"Fastest":  LevelFastest,
		"smallest": LevelSmallest,
		"none":     LevelNone,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("ultra")
	assert.Error(t, err)
}

func TestPolicy_ShouldAttempt(t *testing.T) {
	p := DefaultPolicy()
	assert.False(t, p.ShouldAttempt(".png"))
	assert.False(t, p.ShouldAttempt(".PNG"))
	assert.False(t, p.ShouldAttempt(".mp3"))
	assert.False(t, p.ShouldAttempt(".ogg"))
	assert.True(t, p.ShouldAttempt(".dll"))
	assert.True(t, p.ShouldAttempt(""))

	custom := NewPolicy(0, 0.5, LevelFastest, []string{"wav", " .XNB "})
	assert.False(t, custom.ShouldAttempt(".wav"))
	assert.False(t, custom.ShouldAttempt(".xnb"))
	assert.True(t, custom.ShouldAttempt(".png"))
}

func TestPolicy_Decide(t *testing.T) {
	p := DefaultPolicy()
	zeros := make([]byte, 2000)

	tests := []struct {
		name           string
		path           string
		data           []byte
		wantCompressed bool
	}{
		{"at min size", "a.bin", make([]byte, DefaultMinCompressSize), false},
		{"compressible", "a.bin", zeros, true},
		{"excluded extension", "a.png", zeros, false},
		{"excluded extension upper case", "a.OGG", zeros, false},
		{"incompressible", "a.bin", randomBytes(t, 4096, 1), false},
		{"small", "a.txt", []byte("hello"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Decide(tt.path, tt.data)
			require.NoError(t, err)
			if tt.wantCompressed {
				assert.Less(t, len(got), len(tt.data))
				assert.Less(t, float64(len(got)), float64(len(tt.data))*DefaultTradeoff)
			} else {
				assert.Equal(t, tt.data, got)
			}
		})
	}
}

func TestPolicy_DecideDeterministic(t *testing.T) {
	p := DefaultPolicy()
	data := append(bytes.Repeat([]byte("abc"), 2000), randomBytes(t, 512, 2)...)

	first, err := p.Decide("x.txt", data)
	require.NoError(t, err)
	second, err := p.Decide("x.txt", data)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Less(t, len(first), len(data))
}

func TestPolicy_DecideNeverGrows(t *testing.T) {
	p := NewPolicy(0, 2.0, LevelOptimal, nil)
	data := randomBytes(t, 2048, 3)

	got, err := p.Decide("noise.bin", data)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}
