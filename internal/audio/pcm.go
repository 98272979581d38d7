package audio

import (
	"encoding/binary"
	"math"
)

// ToPCM converts float samples to interleaved int16, clipping to range.
func ToPCM(samples [][2]float64, dst []int16) []int16 {
	if cap(dst) < len(samples)*Channels {
		dst = make([]int16, len(samples)*Channels)
	}
	dst = dst[:len(samples)*Channels]
	for i, s := range samples {
		dst[i*2] = clip16(s[0])
		dst[i*2+1] = clip16(s[1])
	}
	return dst
}

func clip16(v float64) int16 {
	x := math.Round(v * 32767)
	if x > 32767 {
		return 32767
	} else if x < -32768 {
		return -32768
	}
	return int16(x)
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
