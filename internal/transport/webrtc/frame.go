package webrtc

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// SCTP in pion refuses messages over 64 KiB, so every data message is cut
// into frames and put back together on the far side:
//
//	kind (1) | message id (4) | index (4) | payload
//
// The reject frame is JSON and never starts with a frame kind byte.
const (
	frameMore byte = 0x01
	frameLast byte = 0x02

	frameHeaderSize = 9
	frameChunkSize  = 16 * 1024

	// maxMessageSize bounds what a peer can make us buffer.
	maxMessageSize = 512 << 20
)

var (
	errFrameOrder   = errors.New("data frame out of order")
	errFrameTooLong = errors.New("data message too large")
)

func isFrame(b []byte) bool {
	return len(b) >= frameHeaderSize && (b[0] == frameMore || b[0] == frameLast)
}

// splitFrames cuts data into frames carrying at most chunk payload bytes.
// An empty message is still one frame.
func splitFrames(id uint32, data []byte, chunk int) [][]byte {
	n := (len(data) + chunk - 1) / chunk
	if n == 0 {
		n = 1
	}

	frames := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		start := i * chunk
		end := min(start+chunk, len(data))

		f := make([]byte, frameHeaderSize+end-start)
		f[0] = frameMore
		if i == n-1 {
			f[0] = frameLast
		}
		binary.BigEndian.PutUint32(f[1:5], id)
		binary.BigEndian.PutUint32(f[5:9], uint32(i))
		copy(f[frameHeaderSize:], data[start:end])
		frames = append(frames, f)
	}
	return frames
}

// assembler rebuilds messages from frames. The channel is ordered and
// pion delivers messages from a single goroutine, so it needs no lock.
type assembler struct {
	id    uint32
	next  uint32
	buf   []byte
	limit int
}

func newAssembler(limit int) *assembler {
	return &assembler{limit: limit}
}

// push adds one frame and returns the message once its last frame arrives.
func (a *assembler) push(frame []byte) ([]byte, bool, error) {
	id := binary.BigEndian.Uint32(frame[1:5])
	index := binary.BigEndian.Uint32(frame[5:9])
	payload := frame[frameHeaderSize:]

	switch {
	case index == 0:
		a.id, a.buf = id, make([]byte, 0, len(payload))
	case id != a.id || index != a.next:
		a.reset()
		return nil, false, fmt.Errorf("%w: message %d frame %d", errFrameOrder, id, index)
	}

	if len(a.buf)+len(payload) > a.limit {
		a.reset()
		return nil, false, fmt.Errorf("%w: over %d bytes", errFrameTooLong, a.limit)
	}
	a.buf = append(a.buf, payload...)
	a.next = index + 1

	if frame[0] != frameLast {
		return nil, false, nil
	}
	msg := a.buf
	a.reset()
	return msg, true, nil
}

func (a *assembler) reset() {
	a.buf = nil
	a.next = 0
}
