package audio

// Drain reads from ch until it is closed and throws the values away. Use it to
// release a producer goroutine whose output is no longer wanted, for example a
// synthesis stream abandoned after the session ended.
func Drain[T any](ch <-chan T) {
	for range ch {
	}
}
