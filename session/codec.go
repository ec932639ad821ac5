package session

import "encoding/binary"

// Telephone audio is G.711 mu-law at 8 kHz. The model takes 16 kHz PCM
// and answers with 24 kHz PCM, all 16-bit little endian.
const (
	twilioRate     = 8000
	modelInputRate = 16000
	modelOutRate   = 24000

	muLawBias = 0x84
	muLawClip = 32635
)

var muLawDecodeTable [256]int16

func init() {
	for i := range muLawDecodeTable {
		muLawDecodeTable[i] = decodeMuLaw(byte(i))
	}
}

// decodeMuLaw expands one G.711 mu-law byte.
func decodeMuLaw(u byte) int16 {
	u = ^u
	exponent := (u >> 4) & 0x07
	mantissa := int32(u & 0x0F)

	magnitude := ((mantissa << 3) + muLawBias) << exponent
	magnitude -= muLawBias
	if u&0x80 != 0 {
		return int16(-magnitude)
	}
	return int16(magnitude)
}

// EncodeMuLaw compresses one linear sample.
func EncodeMuLaw(sample int16) byte {
	s := int32(sample)
	var sign byte
	if s < 0 {
		sign = 0x80
		s = -s
	}
	if s > muLawClip {
		s = muLawClip
	}
	s += muLawBias

	exponent := byte(7)
	for mask := int32(0x4000); s&mask == 0 && exponent > 0; mask >>= 1 {
		exponent--
	}
	mantissa := byte(s>>(exponent+3)) & 0x0F
	return ^(sign | exponent<<4 | mantissa)
}

// DecodeMuLaw expands one mu-law byte using the lookup table.
func DecodeMuLaw(u byte) int16 {
	return muLawDecodeTable[u]
}

// MuLawToPCM16k converts caller audio for the model. Each 8 kHz sample is
// written twice.
func MuLawToPCM16k(mulaw []byte) []byte {
	const factor = modelInputRate / twilioRate
	pcm := make([]byte, len(mulaw)*2*factor)
	for i, u := range mulaw {
		v := uint16(muLawDecodeTable[u])
		for j := 0; j < factor; j++ {
			binary.LittleEndian.PutUint16(pcm[(i*factor+j)*2:], v)
		}
	}
	return pcm
}

// PCM24kToMuLaw converts model audio for the caller. Every group of three
// samples is averaged into one 8 kHz sample; a trailing partial group is
// averaged over what is there.
func PCM24kToMuLaw(pcm []byte) []byte {
	const factor = modelOutRate / twilioRate
	samples := len(pcm) / 2
	out := make([]byte, 0, (samples+factor-1)/factor)
	for i := 0; i < samples; i += factor {
		var sum, n int32
		for j := i; j < i+factor && j < samples; j++ {
			sum += int32(int16(binary.LittleEndian.Uint16(pcm[j*2:])))
			n++
		}
		out = append(out, EncodeMuLaw(int16(sum/n)))
	}
	return out
}
