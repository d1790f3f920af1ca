// Package protocol implements the wire format spoken with charting clients:
// each message is a 4-byte little-endian length followed by a UTF-8 JSON
// payload of that many bytes.
package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// HeaderSize is the length of the frame header in bytes.
const HeaderSize = 4

// DefaultMaxFrameSize bounds the payload a Reader accepts.
const DefaultMaxFrameSize = 64 << 20

// ErrFrameTooLarge is returned when a header announces a payload above the limit.
var ErrFrameTooLarge = errors.New("frame exceeds maximum size")

// Reader reads length-prefixed frames. If the underlying reader returns an
// error partway through a frame (a read deadline, for example), the bytes
// received so far are kept and the next call to Next resumes the same frame.
type Reader struct {
	r   io.Reader
	max int

	hdr  [HeaderSize]byte
	hn   int
	body []byte
	bn   int
	have bool // header complete, body allocated
}

// NewReader returns a Reader that rejects payloads larger than maxSize bytes.
// A non-positive maxSize selects DefaultMaxFrameSize.
func NewReader(r io.Reader, maxSize int) *Reader {
	if maxSize <= 0 {
		maxSize = DefaultMaxFrameSize
	}
	return &Reader{r: r, max: maxSize}
}

// Next returns the next payload. It returns io.EOF if the stream ends cleanly
// between frames and io.ErrUnexpectedEOF if it ends inside one.
func (fr *Reader) Next() ([]byte, error) {
	for !fr.have {
		n, err := fr.r.Read(fr.hdr[fr.hn:])
		fr.hn += n
		if fr.hn == HeaderSize {
			size := binary.LittleEndian.Uint32(fr.hdr[:])
			if uint64(size) > uint64(fr.max) {
				fr.reset()
				return nil, fmt.Errorf("%w: %d > %d bytes", ErrFrameTooLarge, size, fr.max)
			}
			fr.body = make([]byte, size)
			fr.bn = 0
			fr.have = true
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) && fr.hn > 0 {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	for fr.bn < len(fr.body) {
		n, err := fr.r.Read(fr.body[fr.bn:])
		fr.bn += n
		if fr.bn == len(fr.body) {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}

	payload := fr.body
	fr.reset()
	return payload, nil
}

// Pending reports whether part of a frame has been received.
func (fr *Reader) Pending() bool {
	return fr.hn > 0
}

func (fr *Reader) reset() {
	fr.hn = 0
	fr.body = nil
	fr.bn = 0
	fr.have = false
}

// WriteFrame writes payload with its length header in a single Write call.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > uint64(^uint32(0)) {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(payload))
	}
	buf := make([]byte, HeaderSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[HeaderSize:], payload)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
