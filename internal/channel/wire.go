package channel

// PacketID identifies one wire frame's place in a domain's egress
// stream: which domain sent it and its sequence number within that
// domain's stream, mirroring drpcwire.PacketID's (StreamID, MessageID)
// pair adapted to this engine's single-stream-per-domain egress model
// (there is no RPC method call to multiplex, only one ordered packet
// stream per sending domain).
type PacketID struct {
	Domain uint32
	Seq    uint64
}

// AppendPacketID appends id to buf.
func AppendPacketID(buf []byte, id PacketID) []byte {
	buf = AppendVarint(buf, uint64(id.Domain))
	buf = AppendVarint(buf, id.Seq)
	return buf
}

// ParsePacketID parses a PacketID written by AppendPacketID.
func ParsePacketID(buf []byte) ([]byte, PacketID, bool, error) {
	rem, domain, ok, err := ReadVarint(buf)
	if err != nil || !ok {
		return buf, PacketID{}, false, err
	}
	rem, seq, ok, err := ReadVarint(rem)
	if err != nil || !ok {
		return buf, PacketID{}, false, err
	}
	return rem, PacketID{Domain: uint32(domain), Seq: seq}, true, nil
}

// FrameInfo carries a frame's kind tag (packet.Packet.Kind(), so the
// receiver can pick a decoder before looking at the payload) and the
// length of the payload that follows it.
type FrameInfo struct {
	Kind   string
	Length uint64
}

// AppendFrameInfo appends fi to buf.
func AppendFrameInfo(buf []byte, fi FrameInfo) []byte {
	buf = AppendVarint(buf, uint64(len(fi.Kind)))
	buf = append(buf, fi.Kind...)
	buf = AppendVarint(buf, fi.Length)
	return buf
}

// ParseFrameInfo parses a FrameInfo written by AppendFrameInfo.
func ParseFrameInfo(buf []byte) ([]byte, FrameInfo, bool, error) {
	rem, kindLen, ok, err := ReadVarint(buf)
	if err != nil || !ok {
		return buf, FrameInfo{}, false, err
	}
	if uint64(len(rem)) < kindLen {
		return buf, FrameInfo{}, false, nil
	}
	kind := string(rem[:kindLen])
	rem = rem[kindLen:]
	rem, length, ok, err := ReadVarint(rem)
	if err != nil || !ok {
		return buf, FrameInfo{}, false, err
	}
	return rem, FrameInfo{Kind: kind, Length: length}, true, nil
}

// Header is a frame's envelope: which packet this is (PacketID) and
// what it carries (FrameInfo), immediately followed on the wire by
// FrameInfo.Length bytes of payload.
type Header struct {
	ID   PacketID
	Info FrameInfo
}

// AppendHeader appends h to buf.
func AppendHeader(buf []byte, h Header) []byte {
	buf = AppendPacketID(buf, h.ID)
	buf = AppendFrameInfo(buf, h.Info)
	return buf
}

// ParseHeader parses a Header written by AppendHeader.
func ParseHeader(buf []byte) ([]byte, Header, bool, error) {
	rem, id, ok, err := ParsePacketID(buf)
	if err != nil || !ok {
		return buf, Header{}, false, err
	}
	rem, info, ok, err := ParseFrameInfo(rem)
	if err != nil || !ok {
		return buf, Header{}, false, err
	}
	return rem, Header{ID: id, Info: info}, true, nil
}

// Frame is a complete wire unit: a Header plus its Data payload.
type Frame struct {
	Header Header
	Data   []byte
}

// MaxFrameSize is the initial capacity of Buffer's per-frame scratch
// slice, mirroring drpcwire's MaxPacketSize. AppendFrame and ParseFrame
// do not enforce it: a larger frame is encoded and parsed as usual.
const MaxFrameSize = 1 << 20

// AppendFrame appends f to buf.
func AppendFrame(buf []byte, f Frame) []byte {
	f.Header.Info.Length = uint64(len(f.Data))
	buf = AppendHeader(buf, f.Header)
	buf = append(buf, f.Data...)
	return buf
}

// ParseFrame parses a Frame written by AppendFrame.
func ParseFrame(buf []byte) ([]byte, Frame, bool, error) {
	rem, hdr, ok, err := ParseHeader(buf)
	if err != nil || !ok {
		return buf, Frame{}, false, err
	}
	if uint64(len(rem)) < hdr.Info.Length {
		return buf, Frame{}, false, nil
	}
	data := rem[:hdr.Info.Length:hdr.Info.Length]
	return rem[hdr.Info.Length:], Frame{Header: hdr, Data: data}, true, nil
}
