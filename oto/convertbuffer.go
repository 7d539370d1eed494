package oto

import (
	"encoding/binary"
	"math"

	"github.com/mini-leebee/leebee"
)

// AppendFloat32LE appends the frames of buf to dst as interleaved
// little-endian float32 samples and returns the extended slice. Reusing dst
// avoids allocating once its capacity suffices.
func AppendFloat32LE(dst []byte, buf leebee.AudioBuffer) []byte {
	for _, f := range buf {
		for _, v := range f {
			dst = binary.LittleEndian.AppendUint32(dst, math.Float32bits(v))
		}
	}
	return dst
}

// AppendInt16LE is AppendFloat32LE for devices that only take 16-bit
// integer samples. Values outside [-1, 1] are clipped.
func AppendInt16LE(dst []byte, buf leebee.AudioBuffer) []byte {
	for _, f := range buf {
		for _, v := range f {
			var uv int16
			if v < -1.0 {
				uv = -math.MaxInt16
			} else if v > 1.0 {
				uv = math.MaxInt16
			} else {
				uv = int16(v * math.MaxInt16)
			}
			dst = binary.LittleEndian.AppendUint16(dst, uint16(uv))
		}
	}
	return dst
}
