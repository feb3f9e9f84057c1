// Package buffer provides a thread-safe growable buffer used to hand audio
// samples from a capture goroutine to the goroutine that consumes them.
//
// A Buffer accepts writes until CloseWrite is called; readers then drain the
// remaining elements and observe io.EOF.
//
// Example usage:
//
//	buf := buffer.N[float32](48000)
//	buf.Write(frame)
//
//	// Producer is done.
//	buf.CloseWrite()
//
//	// Consumer takes a copy of everything written.
//	samples := buf.Snapshot()
package buffer
