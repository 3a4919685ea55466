package channel

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"

	"storj.io/flowdb/pkg/packet"
)

// compressThreshold is the payload size above which Encode reaches for
// the klauspost/compress frame codec instead of sending the wire bytes
// raw — large replay chunks and base-table batches are the case this
// exists for; small control packets are not worth the flate round trip.
const compressThreshold = 4096

// Encode serializes p to a Frame payload using packet.Marshal, the
// gogo-style hand-written codec in pkg/packet/wire.go. Payloads over
// compressThreshold are flate-compressed, marked by a leading byte (1
// compressed, 0 raw) ahead of the wire bytes.
func Encode(id PacketID, p packet.Packet) (Frame, error) {
	raw, err := packet.Marshal(p)
	if err != nil {
		return Frame{}, fmt.Errorf("channel: encode %s: %w", p.Kind(), err)
	}

	var data []byte
	if len(raw) > compressThreshold {
		var compressed bytes.Buffer
		compressed.WriteByte(1)
		w, err := flate.NewWriter(&compressed, flate.DefaultCompression)
		if err != nil {
			return Frame{}, err
		}
		if _, err := w.Write(raw); err != nil {
			return Frame{}, err
		}
		if err := w.Close(); err != nil {
			return Frame{}, err
		}
		data = compressed.Bytes()
	} else {
		data = append([]byte{0}, raw...)
	}

	return Frame{
		Header: Header{ID: id, Info: FrameInfo{Kind: p.Kind()}},
		Data:   data,
	}, nil
}

// Decode reverses Encode.
func Decode(f Frame) (packet.Packet, error) {
	if len(f.Data) == 0 {
		return nil, fmt.Errorf("channel: empty frame for %s", f.Header.Info.Kind)
	}
	body := f.Data[1:]

	var raw []byte
	if f.Data[0] == 1 {
		r := flate.NewReader(bytes.NewReader(body))
		decompressed, err := io.ReadAll(r)
		if err != nil {
			return nil, fmt.Errorf("channel: decode %s: %w", f.Header.Info.Kind, err)
		}
		raw = decompressed
	} else {
		raw = body
	}

	p, err := packet.Unmarshal(raw)
	if err != nil {
		return nil, fmt.Errorf("channel: decode %s: %w", f.Header.Info.Kind, err)
	}
	return p, nil
}
