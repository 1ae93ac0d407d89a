// ABOUTME: Byte ring buffer between the writer and the audio callback
// ABOUTME: Reads past the queued data are filled with silence
package output

// ringBuffer is a fixed-size byte FIFO. It is not synchronized; the stream
// device guards it with its own mutex.
type ringBuffer struct {
	buffer   []byte
	readPos  int
	writePos int
	count    int
	silence  byte
}

func newRingBuffer(capacity int, silence byte) *ringBuffer {
	return &ringBuffer{
		buffer:  make([]byte, capacity),
		silence: silence,
	}
}

// Write copies as much of p as fits and returns the byte count.
func (rb *ringBuffer) Write(p []byte) int {
	written := 0
	for written < len(p) && rb.count < len(rb.buffer) {
		end := len(rb.buffer)
		if rb.readPos > rb.writePos || (rb.readPos == rb.writePos && rb.count > 0) {
			end = rb.readPos
		}
		n := copy(rb.buffer[rb.writePos:end], p[written:])
		rb.writePos = (rb.writePos + n) % len(rb.buffer)
		rb.count += n
		written += n
	}
	return written
}

// Read fills p from the buffer and pads the remainder with silence. It
// returns the number of queued bytes consumed.
func (rb *ringBuffer) Read(p []byte) int {
	read := 0
	for read < len(p) && rb.count > 0 {
		end := len(rb.buffer)
		if rb.writePos > rb.readPos {
			end = rb.writePos
		}
		n := copy(p[read:], rb.buffer[rb.readPos:end])
		rb.readPos = (rb.readPos + n) % len(rb.buffer)
		rb.count -= n
		read += n
	}

	for i := read; i < len(p); i++ {
		p[i] = rb.silence
	}
	return read
}

// Len returns the number of queued bytes.
func (rb *ringBuffer) Len() int {
	return rb.count
}

// Free returns the number of bytes that can be written.
func (rb *ringBuffer) Free() int {
	return len(rb.buffer) - rb.count
}

func (rb *ringBuffer) Cap() int {
	return len(rb.buffer)
}

// Reset drops all queued data.
func (rb *ringBuffer) Reset() {
	rb.readPos = 0
	rb.writePos = 0
	rb.count = 0
}
