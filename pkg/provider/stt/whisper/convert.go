package whisper

import "github.com/MrWong99/earshot/pkg/audio"

// pcmToFloat32Mono converts interleaved 16-bit PCM to mono float32 in
// [-1, 1), averaging channels per frame. A trailing partial frame is dropped.
func pcmToFloat32Mono(pcm []byte, channels int) []float32 {
	if channels < 1 {
		channels = 1
	}
	samples := audio.PCMToInt16(pcm)
	frames := len(samples) / channels
	mono := make([]float32, frames)
	for i := range frames {
		var sum float32
		for _, s := range samples[i*channels : (i+1)*channels] {
			sum += float32(s) / 32768.0
		}
		mono[i] = sum / float32(channels)
	}
	return mono
}
