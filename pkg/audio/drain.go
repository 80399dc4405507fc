package audio

// Drain reads from ch until the channel is closed, discarding all values.
// Streaming synthesizers use it to release their producer goroutine when a
// stream is abandoned half way.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
