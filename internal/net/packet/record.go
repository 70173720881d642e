package packet

import (
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
)

// EntityRecord is the full 19-byte wire description of one networked actor.
type EntityRecord struct {
	ID            uint16
	Position      mgl32.Vec3
	InstanceID    uint16
	InstanceState InstanceState
	MovementState MovementState
	VehicleState  VehicleState
}

// WriteTo appends the record to w.
func (rec EntityRecord) WriteTo(w *Writer) {
	w.WriteH(rec.ID)
	w.WriteVec3(rec.Position)
	w.WriteH(rec.InstanceID)
	w.WriteC(byte(rec.InstanceState))
	w.WriteC(byte(rec.MovementState))
	w.WriteC(byte(rec.VehicleState))
}

// Encode returns the 19-byte encoding of rec.
func (rec EntityRecord) Encode() []byte {
	w := &Writer{buf: make([]byte, 0, EntityRecordSize)}
	rec.WriteTo(w)
	return w.Bytes()
}

// ReadEntityRecord reads one record from r.
func ReadEntityRecord(r *Reader) (EntityRecord, error) {
	if r.Remaining() < EntityRecordSize {
		return EntityRecord{}, fmt.Errorf("entity record: %d bytes left: %w", r.Remaining(), ErrMalformedRecord)
	}
	rec := EntityRecord{
		ID:            r.ReadH(),
		Position:      r.ReadVec3(),
		InstanceID:    r.ReadH(),
		InstanceState: InstanceState(r.ReadC()),
		MovementState: MovementState(r.ReadC()),
		VehicleState:  VehicleState(r.ReadC()),
	}
	return rec, r.Err()
}

// DecodeEntityRecord decodes the first record in b.
func DecodeEntityRecord(b []byte) (EntityRecord, error) {
	return ReadEntityRecord(NewReader(b))
}

// SnapshotChunk is the compact 14-byte form used in PLAYER/LIST. A chunk's
// entity id is its index in the list.
type SnapshotChunk struct {
	Present       bool
	MovementState MovementState
	Position      mgl32.Vec3
}

func (c SnapshotChunk) WriteTo(w *Writer) {
	if c.Present {
		w.WriteC(1)
	} else {
		w.WriteC(0)
	}
	w.WriteC(byte(c.MovementState))
	w.WriteVec3(c.Position)
}

// EncodeSnapshot concatenates chunks into a LIST payload.
func EncodeSnapshot(chunks []SnapshotChunk) []byte {
	w := &Writer{buf: make([]byte, 0, len(chunks)*SnapshotChunkSize)}
	for _, c := range chunks {
		c.WriteTo(w)
	}
	return w.Bytes()
}

// DecodeSnapshot splits a LIST payload into chunks.
func DecodeSnapshot(b []byte) ([]SnapshotChunk, error) {
	if len(b)%SnapshotChunkSize != 0 {
		return nil, fmt.Errorf("snapshot: %d bytes: %w", len(b), ErrTruncatedPayload)
	}
	r := NewReader(b)
	out := make([]SnapshotChunk, 0, len(b)/SnapshotChunkSize)
	for r.Remaining() > 0 {
		c := SnapshotChunk{
			Present:       r.ReadC() != 0x00,
			MovementState: MovementState(r.ReadC()),
			Position:      r.ReadVec3(),
		}
		out = append(out, c)
	}
	return out, r.Err()
}
