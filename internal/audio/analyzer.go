package audio

import "encoding/binary"

// AmplitudeBins reduces a raw s16le PCM chunk to a byte-valued bin snapshot.
// The chunk is split into bins equal windows; each bin is the mean absolute
// amplitude of its window scaled to 0..255.
func AmplitudeBins(pcm []byte, bins int) []byte {
	out := make([]byte, bins)
	sampleCount := len(pcm) / 2
	if sampleCount == 0 || bins == 0 {
		return out
	}

	window := sampleCount / bins
	if window == 0 {
		window = 1
	}

	for i := 0; i < bins; i++ {
		start := i * window
		end := start + window
		if start >= sampleCount {
			break
		}
		if end > sampleCount {
			end = sampleCount
		}

		sum := 0
		for j := start; j < end; j++ {
			v := int(int16(binary.LittleEndian.Uint16(pcm[j*2 : j*2+2])))
			if v < 0 {
				v = -v
			}
			sum += v
		}
		mean := sum / (end - start)
		out[i] = byte(mean * 255 / 32768)
	}
	return out
}
