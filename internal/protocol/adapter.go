package protocol

// FrameReader is a per-connection stream reassembler: it buffers raw bytes
// pushed from the socket and yields complete, checksum-validated frames
// one at a time.
type FrameReader interface {
	// Push appends newly read bytes to the internal buffer.
	Push(data []byte)

	// Next attempts to extract one frame from the buffer. It returns
	// (frame, nil) on success, (nil, nil) if more bytes are needed, and
	// (nil, err) on a framing error — callers should keep calling Next
	// after a recoverable error since the offending frame has already
	// been discarded.
	Next() (*Frame, error)
}

// Codec turns a family's validated Frame into the canonical
// DecodedMessage union. Encoding the ACK/command frames sent back to the
// device is not part of this interface; the codec package provides it as
// package-level functions.
type Codec interface {
	// Decode turns a validated Frame into a DecodedMessage.
	Decode(frame *Frame) (DecodedMessage, error)
}
