package channel

import "io"

// Buffer batches Frame writes into size-capped chunks before flushing
// them to w, the way drpcwire.Buffer batches drpc packets: a write that
// would overflow the staging capacity flushes what's already pending
// first, so the staging slice's backing array is reused indefinitely
// rather than reallocated (drpc/drpcwire/buffer_test.go asserts
// cap(buffer.buf) never grows past the size NewBuffer was given). A
// size of 0 flushes every frame immediately, useful for a link that
// wants to forward each packet without delay.
type Buffer struct {
	w   io.Writer
	buf []byte
	tmp []byte
}

// NewBuffer returns a Buffer that flushes to w once its staged bytes
// would exceed size.
func NewBuffer(w io.Writer, size int) *Buffer {
	return &Buffer{
		w:   w,
		buf: make([]byte, 0, size),
		tmp: make([]byte, 0, MaxFrameSize),
	}
}

// Write stages f, flushing first if it would not fit within the
// staging capacity.
func (b *Buffer) Write(f Frame) error {
	b.tmp = AppendFrame(b.tmp[:0], f)
	if cap(b.buf) > 0 && len(b.buf)+len(b.tmp) > cap(b.buf) {
		if err := b.Flush(); err != nil {
			return err
		}
	}
	if cap(b.buf) == 0 || len(b.tmp) > cap(b.buf) {
		// unbuffered, or a single frame larger than the staging capacity
		// (already flushed above): write it straight through.
		_, err := b.w.Write(b.tmp)
		return err
	}
	b.buf = append(b.buf, b.tmp...)
	return nil
}

// Flush writes every staged byte to w and resets the staging slice.
func (b *Buffer) Flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	_, err := b.w.Write(b.buf)
	b.buf = b.buf[:0]
	return err
}
