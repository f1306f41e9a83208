package softrdma

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire constants
const (
	protocolMagic   uint32 = 0x464d4152 // "FAMR"
	protocolVersion uint16 = 1

	helloSize    = 8
	requestSize  = 28
	responseSize = 16

	maxTransfer = 1 << 30 // Largest single request payload
)

const (
	opRead  uint8 = 1
	opWrite uint8 = 2
)

// Response status codes, mapped to completion statuses on the client
const (
	statusOK uint8 = iota
	statusBadKey
	statusOutOfBounds
	statusAccessDenied
	statusBadRequest
)

var (
	// ErrProtocol is returned for malformed frames
	ErrProtocol = errors.New("softrdma: protocol error")
	// ErrRejected is returned when the peer refused the handshake
	ErrRejected = errors.New("softrdma: connection rejected")
)

type hello struct {
	magic   uint32
	version uint16
	depth   uint16 // initiator depth on requests, accept flag on replies
}

func (h hello) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], h.magic)
	binary.LittleEndian.PutUint16(b[4:6], h.version)
	binary.LittleEndian.PutUint16(b[6:8], h.depth)
}

func readHello(r io.Reader) (hello, error) {
	var b [helloSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return hello{}, err
	}
	h := hello{
		magic:   binary.LittleEndian.Uint32(b[0:4]),
		version: binary.LittleEndian.Uint16(b[4:6]),
		depth:   binary.LittleEndian.Uint16(b[6:8]),
	}
	if h.magic != protocolMagic {
		return hello{}, fmt.Errorf("%w: bad magic 0x%x", ErrProtocol, h.magic)
	}
	if h.version != protocolVersion {
		return hello{}, fmt.Errorf("%w: unsupported version %d", ErrProtocol, h.version)
	}
	return h, nil
}

// request is one one-sided operation. Write requests are followed by length
// payload bytes.
type request struct {
	op         uint8
	wrid       uint64
	remoteAddr uint64
	rkey       uint32
	length     uint32
}

func (q request) encode(b []byte) {
	b[0] = q.op
	b[1], b[2], b[3] = 0, 0, 0
	binary.LittleEndian.PutUint64(b[4:12], q.wrid)
	binary.LittleEndian.PutUint64(b[12:20], q.remoteAddr)
	binary.LittleEndian.PutUint32(b[20:24], q.rkey)
	binary.LittleEndian.PutUint32(b[24:28], q.length)
}

func decodeRequest(b []byte) (request, error) {
	q := request{
		op:         b[0],
		wrid:       binary.LittleEndian.Uint64(b[4:12]),
		remoteAddr: binary.LittleEndian.Uint64(b[12:20]),
		rkey:       binary.LittleEndian.Uint32(b[20:24]),
		length:     binary.LittleEndian.Uint32(b[24:28]),
	}
	if q.op != opRead && q.op != opWrite {
		return q, fmt.Errorf("%w: unknown opcode %d", ErrProtocol, q.op)
	}
	if q.length > maxTransfer {
		return q, fmt.Errorf("%w: transfer of %d bytes", ErrProtocol, q.length)
	}
	return q, nil
}

// response answers one request in issue order. Successful read responses are
// followed by length payload bytes.
type response struct {
	status uint8
	wrid   uint64
	length uint32
}

func (s response) encode(b []byte) {
	b[0] = s.status
	b[1], b[2], b[3] = 0, 0, 0
	binary.LittleEndian.PutUint64(b[4:12], s.wrid)
	binary.LittleEndian.PutUint32(b[12:16], s.length)
}

func decodeResponse(b []byte) response {
	return response{
		status: b[0],
		wrid:   binary.LittleEndian.Uint64(b[4:12]),
		length: binary.LittleEndian.Uint32(b[12:16]),
	}
}
