package malgo

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/gen2brain/malgo"
)

// ConvertToFloat32 converts interleaved device samples to normalized floats in
// [-1, 1]. Trailing bytes that do not form a complete sample are ignored. dst
// is reused when it has enough capacity.
func ConvertToFloat32(samples []byte, sourceFormat malgo.FormatType, dst []float32) ([]float32, error) {
	bytesPerSample, _ := GetFormatInfo(sourceFormat)
	if bytesPerSample == 0 {
		return nil, fmt.Errorf("unsupported source format: %v", sourceFormat)
	}

	count := len(samples) / bytesPerSample
	if cap(dst) < count {
		dst = make([]float32, count)
	}
	dst = dst[:count]

	for i := range count {
		src := samples[i*bytesPerSample:]

		switch sourceFormat {
		case malgo.FormatU8:
			// 8-bit PCM is unsigned with 128 as silence
			dst[i] = (float32(src[0]) - 128) / 128

		case malgo.FormatS16:
			dst[i] = float32(int16(binary.LittleEndian.Uint16(src))) / 32768

		case malgo.FormatS24:
			val := int32(src[0]) | int32(src[1])<<8 | int32(src[2])<<16
			// Sign extend if the most significant bit is set
			if (val & 0x800000) != 0 {
				val |= int32(-0x1000000)
			}
			dst[i] = float32(val) / 8388608

		case malgo.FormatS32:
			dst[i] = float32(float64(int32(binary.LittleEndian.Uint32(src))) / 2147483648)

		case malgo.FormatF32:
			v := math.Float32frombits(binary.LittleEndian.Uint32(src))
			// Some backends overshoot slightly, keep the normalized contract
			dst[i] = max(-1, min(1, v))
		}
	}

	return dst, nil
}

// GetFormatInfo returns information about a malgo format type
func GetFormatInfo(format malgo.FormatType) (bytesPerSample int, name string) {
	switch format {
	case malgo.FormatU8:
		return 1, "U8"
	case malgo.FormatS16:
		return 2, "S16"
	case malgo.FormatS24:
		return 3, "S24"
	case malgo.FormatS32:
		return 4, "S32"
	case malgo.FormatF32:
		return 4, "F32"
	default:
		return 0, "Unknown"
	}
}
