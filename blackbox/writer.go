package blackbox

import (
	"compress/flate"
	"fmt"
	"hash/crc32"
	"io"
	"sync"

	"github.com/openracing/ffbengine/core"
	"github.com/openracing/ffbengine/ringqueue"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// recordBufPool recycles the small byte slices each encode* call writes
// into, matching event.Pool's acquire/zero/release pattern rather than
// allocating a fresh slice per record.
var recordBufPool = sync.Pool{
	New: func() any {
		buf := make([]byte, 0, 64)
		return &buf
	},
}

func acquireBuf() *[]byte { return recordBufPool.Get().(*[]byte) }
func releaseBuf(b *[]byte) { *b = (*b)[:0]; recordBufPool.Put(b) }

// ringCapacity bounds memory for each per-stream queue (spec.md §4.9
// "bounded" — the writer drops new records rather than growing
// unboundedly if it falls behind, per spec.md §4.7's drop-on-full
// policy for blackbox/diagnostics rings).
const ringCapacity = 4096

// Writer owns a background goroutine that drains three bounded rings
// (frame/telemetry/health) and appends framed, optionally
// flate-compressed records to an underlying io.Writer, tracking a
// running CRC32C and emitting an index entry every indexIntervalNS.
type Writer struct {
	out      io.Writer
	crc      uint32
	offset   uint64
	compress bool

	frames     *ringqueue.SPSC[Frame]
	telemetry  *ringqueue.SPSC[TelemetrySample]
	health     *ringqueue.SPSC[HealthRecord]

	frameCount     uint64
	telemetryCount uint64
	healthCount    uint64

	lastIndexNS uint64
	started     bool

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewWriter builds a Writer over w, writing the header immediately.
// compress enables per-record flate compression of the record payload
// (spec.md §4.9 "optional compression" — no compression library appears
// anywhere in the retrieved pack, so stdlib compress/flate is used and
// documented in DESIGN.md).
func NewWriter(w io.Writer, h header, compress bool) (*Writer, error) {
	bw := &Writer{
		out:       w,
		compress:  compress,
		frames:    ringqueue.NewSPSC[Frame](ringCapacity),
		telemetry: ringqueue.NewSPSC[TelemetrySample](ringCapacity),
		health:    ringqueue.NewSPSC[HealthRecord](ringCapacity),
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
	if err := bw.writeRaw(h.encode()); err != nil {
		return nil, fmt.Errorf("blackbox: writing header: %w", err)
	}
	return bw, nil
}

// PushFrame enqueues a stream-A record. Non-blocking, drop-on-full
// (spec.md §4.7); called from the RT thread.
func (w *Writer) PushFrame(f Frame) bool { return w.frames.TryPush(f) }

// PushTelemetry enqueues a stream-B record. Non-blocking, drop-on-full.
func (w *Writer) PushTelemetry(s TelemetrySample) bool { return w.telemetry.TryPush(s) }

// PushHealth enqueues a stream-C record. Non-blocking, drop-on-full.
func (w *Writer) PushHealth(h HealthRecord) bool { return w.health.TryPush(h) }

// Start launches the dedicated drain goroutine via core.Go (panic-safe;
// spec.md §3.3/§7 — a blackbox writer crash never affects the RT
// thread).
func (w *Writer) Start() {
	if w.started {
		return
	}
	w.started = true
	core.Go(w.run)
}

// Stop signals the drain goroutine to flush remaining records and exit,
// blocking until it has.
func (w *Writer) Stop() {
	if !w.started {
		return
	}
	close(w.stopCh)
	<-w.doneCh
}

func (w *Writer) run() {
	defer close(w.doneCh)
	for {
		w.drainOnce()
		select {
		case <-w.stopCh:
			w.drainOnce() // final flush
			return
		default:
		}
	}
}

func (w *Writer) drainOnce() {
	for {
		f, ok := w.frames.TryPop()
		if !ok {
			break
		}
		buf := acquireBuf()
		*buf = encodeFrame((*buf)[:0], f)
		w.writeRecord(*buf)
		releaseBuf(buf)
		w.frameCount++
		w.maybeWriteIndex(f.TSMonoNS)
	}
	for {
		s, ok := w.telemetry.TryPop()
		if !ok {
			break
		}
		buf := acquireBuf()
		*buf = encodeTelemetry((*buf)[:0], s)
		w.writeRecord(*buf)
		releaseBuf(buf)
		w.telemetryCount++
	}
	for {
		h, ok := w.health.TryPop()
		if !ok {
			break
		}
		buf := acquireBuf()
		*buf = encodeHealth((*buf)[:0], h)
		w.writeRecord(*buf)
		releaseBuf(buf)
		w.healthCount++
	}
}

func (w *Writer) maybeWriteIndex(nowNS uint64) {
	if nowNS-w.lastIndexNS < indexIntervalNS {
		return
	}
	w.lastIndexNS = nowNS
	buf := acquireBuf()
	*buf = encodeIndexEntry((*buf)[:0], nowNS, w.offset)
	w.writeRaw(*buf)
	releaseBuf(buf)
}

func (w *Writer) writeRecord(rec []byte) {
	if !w.compress {
		w.writeRaw(rec)
		return
	}
	compressed := w.compressRecord(rec)
	_ = w.writeRaw(appendUint32(appendUint32(nil, uint32(len(rec))), uint32(len(compressed))))
	w.writeRaw(compressed)
}

func (w *Writer) compressRecord(rec []byte) []byte {
	var out []byte
	buf := newSliceWriter(&out)
	fw, err := flate.NewWriter(buf, flate.DefaultCompression)
	if err != nil {
		return rec
	}
	_, _ = fw.Write(rec)
	_ = fw.Close()
	return out
}

func (w *Writer) writeRaw(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	n, err := w.out.Write(b)
	w.crc = crc32.Update(w.crc, castagnoli, b[:n])
	w.offset += uint64(n)
	return err
}

// Close writes the footer (record counts + running CRC32C) and returns
// any write error.
func (w *Writer) Close() error {
	f := footer{
		FrameCount:     w.frameCount,
		TelemetryCount: w.telemetryCount,
		HealthCount:    w.healthCount,
		CRC32C:         w.crc,
	}
	return w.writeRaw(f.encode())
}

// sliceWriter adapts a *[]byte to io.Writer for flate output capture.
type sliceWriter struct{ dst *[]byte }

func newSliceWriter(dst *[]byte) *sliceWriter { return &sliceWriter{dst: dst} }

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s.dst = append(*s.dst, p...)
	return len(p), nil
}

// Header re-exports header construction for callers outside the
// package (orchestrator composes one at startup).
type Header = header

// NewHeader builds a Header value.
func NewHeader(startUnixNanos int64, tickIntervalNS uint32, deviceID uint32) Header {
	return Header{StartTimeUnixNanos: startUnixNanos, TickIntervalNS: tickIntervalNS, DeviceID: deviceID}
}
