package audio

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"math"
)

// FloatToPCM converts normalized samples to S16LE bytes. Samples are
// clamped to [-1, 1] before scaling.
func FloatToPCM(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1 {
			s = 1
		} else if s < -1 {
			s = -1
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*0x7FFF)))
	}
	return out
}

// PCMToFloat converts S16LE bytes to normalized samples. A trailing odd
// byte is ignored.
func PCMToFloat(data []byte) []float32 {
	n := len(data) / 2
	out := make([]float32, n)
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		out[i] = float32(s) / 32768.0
	}
	return out
}

// EncodeChunk wraps raw S16LE bytes in the base64 transport encoding used
// on the wire.
func EncodeChunk(pcm []byte) string {
	return base64.StdEncoding.EncodeToString(pcm)
}

// DecodeChunk reverses EncodeChunk.
func DecodeChunk(b64 string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("decoding audio chunk: %w", err)
	}
	return data, nil
}

// RMS computes the root-mean-square level of an S16LE buffer, normalized
// to [0, 1]. Used for the UI level meter.
func RMS(data []byte) float64 {
	if len(data) < 2 {
		return 0
	}
	var sumSquares float64
	n := len(data) / 2
	for i := 0; i < n; i++ {
		s := int16(binary.LittleEndian.Uint16(data[i*2:]))
		normalized := float64(s) / 32768.0
		sumSquares += normalized * normalized
	}
	return math.Sqrt(sumSquares / float64(n))
}
