package desfire

// rxBuffer accumulates the frames of one chained response. Frames are
// appended as they arrive and the status marker of the last frame is cut off
// before the next frame is requested, so the buffer always holds a contiguous
// payload.
type rxBuffer struct {
	data []byte
}

func (b *rxBuffer) append(p []byte) {
	b.data = append(b.data, p...)
}

func (b *rxBuffer) len() int {
	return len(b.data)
}

// trimTrailingMarker removes and returns the last n bytes.
func (b *rxBuffer) trimTrailingMarker(n int) []byte {
	if n > len(b.data) {
		n = len(b.data)
	}
	cut := len(b.data) - n
	marker := append([]byte(nil), b.data[cut:]...)
	b.data = b.data[:cut]
	return marker
}

// take hands out everything but the last keep bytes and leaves those in the
// buffer.
func (b *rxBuffer) take(keep int) []byte {
	if keep >= len(b.data) {
		return nil
	}
	n := len(b.data) - keep
	out := append([]byte(nil), b.data[:n]...)
	b.data = append(b.data[:0], b.data[n:]...)
	return out
}

func (b *rxBuffer) reset() {
	b.data = b.data[:0]
}
