package blackbox

import (
	"encoding/binary"
	"math"
)

// Wire format (spec.md §4.9/§6): magic + fixed header, then an
// interleaved stream of tagged records (A: tick frame, B: telemetry, C:
// health), an index entry emitted every indexIntervalNS, and a footer
// with record counts and a CRC32C checksum of everything preceding it.
const (
	magic         uint32 = 0x46464242 // "FFBB"
	formatVersion uint16 = 1

	recordTagFrame     byte = 'A'
	recordTagTelemetry byte = 'B'
	recordTagHealth    byte = 'C'
	recordTagIndex     byte = 'I'

	indexIntervalNS uint64 = 100_000_000 // spec.md §4.9: "100ms index cadence"
)

// header is written once at the start of the stream.
type header struct {
	StartTimeUnixNanos int64
	TickIntervalNS     uint32
	DeviceID           uint32
}

func (h header) encode() []byte {
	buf := make([]byte, 4+2+8+4+4)
	off := 0
	binary.BigEndian.PutUint32(buf[off:], magic)
	off += 4
	binary.BigEndian.PutUint16(buf[off:], formatVersion)
	off += 2
	binary.BigEndian.PutUint64(buf[off:], uint64(h.StartTimeUnixNanos))
	off += 8
	binary.BigEndian.PutUint32(buf[off:], h.TickIntervalNS)
	off += 4
	binary.BigEndian.PutUint32(buf[off:], h.DeviceID)
	return buf
}

// footer is appended once, on Close.
type footer struct {
	FrameCount     uint64
	TelemetryCount uint64
	HealthCount    uint64
	CRC32C         uint32
}

func (f footer) encode() []byte {
	buf := make([]byte, 8+8+8+4)
	off := 0
	binary.BigEndian.PutUint64(buf[off:], f.FrameCount)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], f.TelemetryCount)
	off += 8
	binary.BigEndian.PutUint64(buf[off:], f.HealthCount)
	off += 8
	binary.BigEndian.PutUint32(buf[off:], f.CRC32C)
	return buf
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

// encodeFrame serializes f into dst (grown/reused across calls by the
// caller, matching event.Pool's acquire/release-buffer idiom).
func encodeFrame(dst []byte, f Frame) []byte {
	dst = dst[:0]
	dst = append(dst, recordTagFrame)
	dst = appendUint16(dst, f.Seq)
	dst = appendUint64(dst, f.TSMonoNS)
	dst = appendFloat32(dst, f.FFBIn)
	dst = appendFloat32(dst, f.TorqueOut)
	dst = appendFloat32(dst, f.WheelSpeed)
	dst = append(dst, boolByte(f.HandsOff))
	dst = append(dst, byte(f.SafetyState))
	dst = appendUint32(dst, f.ProcessingTimeNS)
	dst = appendUint16(dst, uint16(len(f.NodeOutputs)))
	for _, v := range f.NodeOutputs {
		dst = appendFloat32(dst, v)
	}
	return dst
}

func encodeTelemetry(dst []byte, s TelemetrySample) []byte {
	dst = dst[:0]
	dst = append(dst, recordTagTelemetry)
	dst = appendUint64(dst, s.TSMonoNS)
	dst = appendFloat32(dst, s.WheelSpeed)
	return dst
}

func encodeHealth(dst []byte, h HealthRecord) []byte {
	dst = dst[:0]
	dst = append(dst, recordTagHealth)
	dst = appendUint64(dst, h.AtNS)
	dst = appendUint32(dst, uint32(h.Kind))
	dst = appendUint32(dst, uint32(h.Severity))
	dst = append(dst, boolByte(h.Recovered))
	dst = appendUint16(dst, uint16(len(h.Detail)))
	dst = append(dst, h.Detail...)
	return dst
}

func encodeIndexEntry(dst []byte, atNS uint64, offset uint64) []byte {
	dst = dst[:0]
	dst = append(dst, recordTagIndex)
	dst = appendUint64(dst, atNS)
	dst = appendUint64(dst, offset)
	return dst
}

func appendUint16(dst []byte, v uint16) []byte {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	return append(dst, b[:]...)
}

func appendUint32(dst []byte, v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return append(dst, b[:]...)
}

func appendUint64(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func appendFloat32(dst []byte, v float32) []byte {
	return appendUint32(dst, math.Float32bits(v))
}
