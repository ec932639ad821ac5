package session

import (
	"encoding/binary"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMuLawKnownValues(t *testing.T) {
	assert.Equal(t, byte(0xFF), EncodeMuLaw(0))
	assert.Equal(t, int16(0), DecodeMuLaw(0xFF))
	assert.Equal(t, int16(0), DecodeMuLaw(0x7F))
	assert.Equal(t, int16(-32124), DecodeMuLaw(0x00))
	assert.Equal(t, int16(32124), DecodeMuLaw(0x80))
	assert.Equal(t, EncodeMuLaw(32767), EncodeMuLaw(muLawClip))
}

func TestMuLawTableMatchesDecoder(t *testing.T) {
	for i := 0; i < 256; i++ {
		assert.Equal(t, decodeMuLaw(byte(i)), DecodeMuLaw(byte(i)))
	}
}

func TestMuLawProperties(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("decoded bytes re-encode to themselves", prop.ForAll(
		func(u uint8) bool {
			d := DecodeMuLaw(u)
			// 0x7F and 0xFF both decode to zero.
			if d == 0 {
				return EncodeMuLaw(d) == 0xFF
			}
			return EncodeMuLaw(d) == u
		},
		gen.UInt8(),
	))

	properties.Property("round trip keeps sign and stays within quantization error", prop.ForAll(
		func(s int16) bool {
			d := DecodeMuLaw(EncodeMuLaw(s))
			if s > 0 && d < 0 || s < 0 && d > 0 {
				return false
			}
			diff := int32(s) - int32(d)
			if diff < 0 {
				diff = -diff
			}
			mag := int32(s)
			if mag < 0 {
				mag = -mag
			}
			// Step size grows with magnitude; one step is at most 1/16 of the
			// segment plus the clip range at the top.
			return diff <= mag/16+33 || mag > muLawClip
		},
		gen.Int16(),
	))

	properties.TestingRun(t)
}

func TestMuLawToPCM16k(t *testing.T) {
	pcm := MuLawToPCM16k([]byte{0xFF, 0x80})
	require.Len(t, pcm, 8)

	samples := make([]int16, 4)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	assert.Equal(t, []int16{0, 0, 32124, 32124}, samples)
	assert.Empty(t, MuLawToPCM16k(nil))
}

func TestPCM24kToMuLaw(t *testing.T) {
	pcm := make([]byte, 0, 14)
	for _, s := range []int16{300, 300, 300, -900, -900, -900, 1000} {
		pcm = binary.LittleEndian.AppendUint16(pcm, uint16(s))
	}

	out := PCM24kToMuLaw(pcm)
	require.Len(t, out, 3)
	assert.Equal(t, EncodeMuLaw(300), out[0])
	assert.Equal(t, EncodeMuLaw(-900), out[1])
	assert.Equal(t, EncodeMuLaw(1000), out[2])

	// An odd trailing byte is ignored.
	assert.Len(t, PCM24kToMuLaw(append(pcm[:6], 0x01)), 1)
	assert.Empty(t, PCM24kToMuLaw(nil))
}
