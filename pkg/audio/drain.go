package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Use it to release a producer goroutine when the consumer gives up early,
// e.g. a TTS chunk channel after playback was cancelled.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
