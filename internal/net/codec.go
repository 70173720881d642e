package net

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/worldsync/server/internal/net/packet"
)

// ErrEmptyFrame is returned for a header that announces no body. The stream
// is still in sync afterwards, so readers may keep going.
var ErrEmptyFrame = errors.New("empty frame")

// ReadFrame reads one length-prefixed frame from r.
// Wire format: [2 bytes LE: total length including header][frame].
func ReadFrame(r io.Reader) ([]byte, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("read frame header: %w", err)
	}

	totalLen := int(binary.LittleEndian.Uint16(header[:]))
	frameLen := totalLen - 2
	if frameLen == 0 {
		return nil, ErrEmptyFrame
	}
	if frameLen < 0 || frameLen > packet.MaxFrameSize {
		return nil, fmt.Errorf("invalid frame length: %d", totalLen)
	}

	frame := make([]byte, frameLen)
	if _, err := io.ReadFull(r, frame); err != nil {
		return nil, fmt.Errorf("read frame body (%d bytes): %w", frameLen, err)
	}
	return frame, nil
}

// WriteFrame writes one frame to w as a single Write call so concurrent
// writers on other connections never split a header from its body.
func WriteFrame(w io.Writer, frame []byte) error {
	if len(frame) == 0 || len(frame) > packet.MaxFrameSize {
		return fmt.Errorf("invalid frame length: %d", len(frame))
	}
	buf := make([]byte, 2, len(frame)+2)
	binary.LittleEndian.PutUint16(buf, uint16(len(frame)+2))
	buf = append(buf, frame...)
	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
