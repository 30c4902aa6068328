package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNumber(t *testing.T) {
	tests := map[int64]string{
		0:        "0",
		999:      "999",
		1000:     "1,000",
		1234567:  "1,234,567",
		-1234567: "-1,234,567",
	}
	for in, want := range tests {
		assert.Equal(t, want, Number(in))
	}
}

func TestBytes(t *testing.T) {
	assert.Equal(t, "512 B", Bytes(512))
	assert.Equal(t, "2.0 KiB", Bytes(2048))
	assert.Equal(t, "5.0 MiB", Bytes(5<<20))
}

func TestRatio(t *testing.T) {
	assert.Equal(t, "-", Ratio(1, 0))
	assert.Equal(t, "50.0%", Ratio(50, 100))
}

func TestDuration(t *testing.T) {
	assert.Equal(t, "350ms", Duration(350*time.Millisecond))
	assert.Equal(t, "5.2s", Duration(5200*time.Millisecond))
	assert.Equal(t, "3m5.0s", Duration(3*time.Minute+5*time.Second))
	assert.Equal(t, "2h15m", Duration(2*time.Hour+15*time.Minute))
}
