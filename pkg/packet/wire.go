package packet

import (
	"fmt"

	"storj.io/flowdb/pkg/wire"
)

// Every Packet variant gets hand-written Marshal/Unmarshal methods in
// the shape protoc-gen-gogofaster would emit for a oneof-free message
// per variant, plus a variant tag so Marshal/Unmarshal at the bottom
// of this file can round-trip the Packet interface itself — the wire
// counterpart of internal/channel's old encoding/gob.Register runtime
// type registry, fixed at compile time instead of reflection. Tracer
// never crosses the wire: it carries a func field gob couldn't encode
// either, and it's this process's own span-hook, not state meant to
// travel to a remote domain.

const (
	tagMessage = iota + 1
	tagInput
	tagReplayPiece
	tagRequestPartialReplay
	tagRequestReaderReplay
	tagStartReplay
	tagFinish
	tagEvict
	tagReady
	tagAddNode
	tagUpdateEgress
	tagPrepareState
	tagSetupReplayPath
	tagCaptured
	tagNone
)

// Marshal encodes p as a variant tag followed by that variant's own
// wire encoding.
func Marshal(p Packet) ([]byte, error) {
	tag, body, err := marshalVariant(p)
	if err != nil {
		return nil, err
	}
	buf := wire.AppendVarint(nil, uint64(tag))
	return append(buf, body...), nil
}

// Unmarshal reverses Marshal.
func Unmarshal(data []byte) (Packet, error) {
	tag, n, err := wire.ReadVarint(data)
	if err != nil {
		return nil, err
	}
	return unmarshalVariant(int(tag), data[n:])
}

func marshalVariant(p Packet) (int, []byte, error) {
	switch v := p.(type) {
	case Message:
		body, _ := v.Marshal()
		return tagMessage, body, nil
	case Input:
		body, _ := v.Marshal()
		return tagInput, body, nil
	case ReplayPiece:
		body, _ := v.Marshal()
		return tagReplayPiece, body, nil
	case RequestPartialReplay:
		body, _ := v.Marshal()
		return tagRequestPartialReplay, body, nil
	case RequestReaderReplay:
		body, _ := v.Marshal()
		return tagRequestReaderReplay, body, nil
	case StartReplay:
		body, _ := v.Marshal()
		return tagStartReplay, body, nil
	case Finish:
		body, _ := v.Marshal()
		return tagFinish, body, nil
	case Evict:
		body, _ := v.Marshal()
		return tagEvict, body, nil
	case Ready:
		body, _ := v.Marshal()
		return tagReady, body, nil
	case AddNode:
		body, _ := v.Marshal()
		return tagAddNode, body, nil
	case UpdateEgress:
		body, _ := v.Marshal()
		return tagUpdateEgress, body, nil
	case PrepareState:
		body, _ := v.Marshal()
		return tagPrepareState, body, nil
	case SetupReplayPath:
		body, _ := v.Marshal()
		return tagSetupReplayPath, body, nil
	case Captured:
		return tagCaptured, nil, nil
	case None:
		return tagNone, nil, nil
	default:
		return 0, nil, fmt.Errorf("packet: marshal: unknown variant %T", p)
	}
}

func unmarshalVariant(tag int, body []byte) (Packet, error) {
	switch tag {
	case tagMessage:
		var v Message
		err := v.Unmarshal(body)
		return v, err
	case tagInput:
		var v Input
		err := v.Unmarshal(body)
		return v, err
	case tagReplayPiece:
		var v ReplayPiece
		err := v.Unmarshal(body)
		return v, err
	case tagRequestPartialReplay:
		var v RequestPartialReplay
		err := v.Unmarshal(body)
		return v, err
	case tagRequestReaderReplay:
		var v RequestReaderReplay
		err := v.Unmarshal(body)
		return v, err
	case tagStartReplay:
		var v StartReplay
		err := v.Unmarshal(body)
		return v, err
	case tagFinish:
		var v Finish
		err := v.Unmarshal(body)
		return v, err
	case tagEvict:
		var v Evict
		err := v.Unmarshal(body)
		return v, err
	case tagReady:
		var v Ready
		err := v.Unmarshal(body)
		return v, err
	case tagAddNode:
		var v AddNode
		err := v.Unmarshal(body)
		return v, err
	case tagUpdateEgress:
		var v UpdateEgress
		err := v.Unmarshal(body)
		return v, err
	case tagPrepareState:
		var v PrepareState
		err := v.Unmarshal(body)
		return v, err
	case tagSetupReplayPath:
		var v SetupReplayPath
		err := v.Unmarshal(body)
		return v, err
	case tagCaptured:
		return Captured{}, nil
	case tagNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("packet: unmarshal: unknown variant tag %d", tag)
	}
}

// replay context wire encoding: a one-byte kind prefix (1=Partial,
// 2=Regular) followed by that kind's own fields, since ReplayContext
// is a two-member sum type nested inside ReplayPiece rather than a
// top-level Packet variant.
func marshalReplayContext(ctx ReplayContext) []byte {
	switch c := ctx.(type) {
	case PartialContext:
		buf := []byte{1}
		buf = wire.AppendBytesField(buf, 1, c.Key)
		buf = wire.AppendBoolField(buf, 2, c.Ignore)
		data, _ := c.ForKey.Marshal()
		buf = wire.AppendBytesField(buf, 3, data)
		return buf
	case RegularContext:
		buf := []byte{2}
		buf = wire.AppendBoolField(buf, 1, c.Last)
		return buf
	default:
		return nil
	}
}

func unmarshalReplayContext(data []byte) (ReplayContext, error) {
	if len(data) == 0 {
		return nil, nil
	}
	kind, body := data[0], data[1:]
	switch kind {
	case 1:
		var c PartialContext
		for len(body) > 0 {
			f, n, err := wire.Next(body)
			if err != nil {
				return nil, err
			}
			body = body[n:]
			switch f.Num {
			case 1:
				c.Key = append([]byte(nil), f.Bytes...)
			case 2:
				c.Ignore = f.Bool()
			case 3:
				if err := c.ForKey.Unmarshal(f.Bytes); err != nil {
					return nil, err
				}
			}
		}
		return c, nil
	case 2:
		var c RegularContext
		for len(body) > 0 {
			f, n, err := wire.Next(body)
			if err != nil {
				return nil, err
			}
			body = body[n:]
			if f.Num == 1 {
				c.Last = f.Bool()
			}
		}
		return c, nil
	default:
		return nil, fmt.Errorf("packet: unmarshal replay context: unknown kind %d", kind)
	}
}

func marshalIntSlice(s []int) []byte {
	var buf []byte
	for _, v := range s {
		buf = wire.AppendRepeatedVarintField(buf, 1, uint64(v))
	}
	return buf
}

func unmarshalIntSlice(data []byte) ([]int, error) {
	var out []int
	for len(data) > 0 {
		f, n, err := wire.Next(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		if f.Num == 1 {
			out = append(out, int(f.Varint))
		}
	}
	return out, nil
}

// Message

func (m Message) Size() int { return len(m.appendTo(nil)) }

func (m Message) Marshal() ([]byte, error) { return m.appendTo(nil), nil }

func (m Message) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, m.appendTo(nil)), nil }

func (m Message) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(m.Link.Src))
	buf = wire.AppendVarintField(buf, 2, uint64(m.Link.Dst))
	data, _ := m.Data.Marshal()
	buf = wire.AppendBytesField(buf, 3, data)
	return buf
}

func (m *Message) Unmarshal(dAtA []byte) error {
	*m = Message{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			m.Link.Src = LocalNodeIndex(f.Varint)
		case 2:
			m.Link.Dst = LocalNodeIndex(f.Varint)
		case 3:
			if err := m.Data.Unmarshal(f.Bytes); err != nil {
				return err
			}
		}
	}
	return nil
}

// Input

func (in Input) Size() int { return len(in.appendTo(nil)) }

func (in Input) Marshal() ([]byte, error) { return in.appendTo(nil), nil }

func (in Input) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, in.appendTo(nil)), nil }

func (in Input) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(in.Link.Src))
	buf = wire.AppendVarintField(buf, 2, uint64(in.Link.Dst))
	data, _ := in.Data.Marshal()
	buf = wire.AppendBytesField(buf, 3, data)
	buf = wire.AppendBytesField(buf, 4, in.Token)
	return buf
}

func (in *Input) Unmarshal(dAtA []byte) error {
	*in = Input{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			in.Link.Src = LocalNodeIndex(f.Varint)
		case 2:
			in.Link.Dst = LocalNodeIndex(f.Varint)
		case 3:
			if err := in.Data.Unmarshal(f.Bytes); err != nil {
				return err
			}
		case 4:
			in.Token = append([]byte(nil), f.Bytes...)
		}
	}
	return nil
}

// ReplayPiece

func (p ReplayPiece) Size() int { return len(p.appendTo(nil)) }

func (p ReplayPiece) Marshal() ([]byte, error) { return p.appendTo(nil), nil }

func (p ReplayPiece) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, p.appendTo(nil)), nil }

func (p ReplayPiece) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(p.Link.Src))
	buf = wire.AppendVarintField(buf, 2, uint64(p.Link.Dst))
	buf = wire.AppendVarintField(buf, 3, uint64(p.Tag))
	data, _ := p.Data.Marshal()
	buf = wire.AppendBytesField(buf, 4, data)
	buf = wire.AppendBytesField(buf, 5, marshalReplayContext(p.Context))
	return buf
}

func (p *ReplayPiece) Unmarshal(dAtA []byte) error {
	*p = ReplayPiece{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			p.Link.Src = LocalNodeIndex(f.Varint)
		case 2:
			p.Link.Dst = LocalNodeIndex(f.Varint)
		case 3:
			p.Tag = Tag(f.Varint)
		case 4:
			if err := p.Data.Unmarshal(f.Bytes); err != nil {
				return err
			}
		case 5:
			ctx, err := unmarshalReplayContext(f.Bytes)
			if err != nil {
				return err
			}
			p.Context = ctx
		}
	}
	return nil
}

// RequestPartialReplay

func (r RequestPartialReplay) Size() int { return len(r.appendTo(nil)) }

func (r RequestPartialReplay) Marshal() ([]byte, error) { return r.appendTo(nil), nil }

func (r RequestPartialReplay) MarshalTo(dAtA []byte) (int, error) {
	return copy(dAtA, r.appendTo(nil)), nil
}

func (r RequestPartialReplay) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(r.Link.Src))
	buf = wire.AppendVarintField(buf, 2, uint64(r.Link.Dst))
	buf = wire.AppendVarintField(buf, 3, uint64(r.Tag))
	buf = wire.AppendBytesField(buf, 4, r.Key)
	buf = wire.AppendBoolField(buf, 5, r.Unishard)
	return buf
}

func (r *RequestPartialReplay) Unmarshal(dAtA []byte) error {
	*r = RequestPartialReplay{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			r.Link.Src = LocalNodeIndex(f.Varint)
		case 2:
			r.Link.Dst = LocalNodeIndex(f.Varint)
		case 3:
			r.Tag = Tag(f.Varint)
		case 4:
			r.Key = append([]byte(nil), f.Bytes...)
		case 5:
			r.Unishard = f.Bool()
		}
	}
	return nil
}

// RequestReaderReplay

func (r RequestReaderReplay) Size() int { return len(r.appendTo(nil)) }

func (r RequestReaderReplay) Marshal() ([]byte, error) { return r.appendTo(nil), nil }

func (r RequestReaderReplay) MarshalTo(dAtA []byte) (int, error) {
	return copy(dAtA, r.appendTo(nil)), nil
}

func (r RequestReaderReplay) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(r.Node))
	for _, c := range r.Cols {
		buf = wire.AppendRepeatedVarintField(buf, 2, uint64(c))
	}
	for _, k := range r.Keys {
		buf = wire.AppendRepeatedBytesField(buf, 3, k)
	}
	return buf
}

func (r *RequestReaderReplay) Unmarshal(dAtA []byte) error {
	*r = RequestReaderReplay{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			r.Node = LocalNodeIndex(f.Varint)
		case 2:
			r.Cols = append(r.Cols, int(f.Varint))
		case 3:
			r.Keys = append(r.Keys, append([]byte(nil), f.Bytes...))
		}
	}
	return nil
}

// StartReplay

func (s StartReplay) Size() int { return len(s.appendTo(nil)) }

func (s StartReplay) Marshal() ([]byte, error) { return s.appendTo(nil), nil }

func (s StartReplay) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, s.appendTo(nil)), nil }

func (s StartReplay) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(s.Tag))
	buf = wire.AppendVarintField(buf, 2, uint64(s.From))
	return buf
}

func (s *StartReplay) Unmarshal(dAtA []byte) error {
	*s = StartReplay{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			s.Tag = Tag(f.Varint)
		case 2:
			s.From = LocalNodeIndex(f.Varint)
		}
	}
	return nil
}

// Finish

func (fin Finish) Size() int { return len(fin.appendTo(nil)) }

func (fin Finish) Marshal() ([]byte, error) { return fin.appendTo(nil), nil }

func (fin Finish) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, fin.appendTo(nil)), nil }

func (fin Finish) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(fin.Tag))
	buf = wire.AppendVarintField(buf, 2, uint64(fin.NI))
	return buf
}

func (fin *Finish) Unmarshal(dAtA []byte) error {
	*fin = Finish{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			fin.Tag = Tag(f.Varint)
		case 2:
			fin.NI = LocalNodeIndex(f.Varint)
		}
	}
	return nil
}

// Evict

func (e Evict) Size() int { return len(e.appendTo(nil)) }

func (e Evict) Marshal() ([]byte, error) { return e.appendTo(nil), nil }

func (e Evict) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, e.appendTo(nil)), nil }

func (e Evict) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(e.Node))
	for _, k := range e.Keys {
		buf = wire.AppendRepeatedBytesField(buf, 2, k)
	}
	buf = wire.AppendZigzagField(buf, 3, e.Bytes)
	return buf
}

func (e *Evict) Unmarshal(dAtA []byte) error {
	*e = Evict{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			e.Node = LocalNodeIndex(f.Varint)
		case 2:
			e.Keys = append(e.Keys, append([]byte(nil), f.Bytes...))
		case 3:
			e.Bytes = wire.UnzigzagInt64(f.Varint)
		}
	}
	return nil
}

// Ready

func (r Ready) Size() int { return len(r.appendTo(nil)) }

func (r Ready) Marshal() ([]byte, error) { return r.appendTo(nil), nil }

func (r Ready) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, r.appendTo(nil)), nil }

func (r Ready) appendTo(buf []byte) []byte {
	return wire.AppendVarintField(buf, 1, uint64(r.Domain))
}

func (r *Ready) Unmarshal(dAtA []byte) error {
	*r = Ready{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		if f.Num == 1 {
			r.Domain = uint32(f.Varint)
		}
	}
	return nil
}

// AddNode

func (a AddNode) Size() int { return len(a.appendTo(nil)) }

func (a AddNode) Marshal() ([]byte, error) { return a.appendTo(nil), nil }

func (a AddNode) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, a.appendTo(nil)), nil }

func (a AddNode) appendTo(buf []byte) []byte {
	return wire.AppendVarintField(buf, 1, uint64(a.Node))
}

func (a *AddNode) Unmarshal(dAtA []byte) error {
	*a = AddNode{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		if f.Num == 1 {
			a.Node = LocalNodeIndex(f.Varint)
		}
	}
	return nil
}

// UpdateEgress

func (u UpdateEgress) Size() int { return len(u.appendTo(nil)) }

func (u UpdateEgress) Marshal() ([]byte, error) { return u.appendTo(nil), nil }

func (u UpdateEgress) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, u.appendTo(nil)), nil }

func (u UpdateEgress) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(u.Egress))
	buf = wire.AppendVarintField(buf, 2, uint64(u.Tag))
	buf = wire.AppendVarintField(buf, 3, uint64(u.Child))
	return buf
}

func (u *UpdateEgress) Unmarshal(dAtA []byte) error {
	*u = UpdateEgress{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			u.Egress = LocalNodeIndex(f.Varint)
		case 2:
			u.Tag = Tag(f.Varint)
		case 3:
			u.Child = NodeIndex(f.Varint)
		}
	}
	return nil
}

// PrepareState

func (p PrepareState) Size() int { return len(p.appendTo(nil)) }

func (p PrepareState) Marshal() ([]byte, error) { return p.appendTo(nil), nil }

func (p PrepareState) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, p.appendTo(nil)), nil }

func (p PrepareState) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(p.Node))
	for _, idx := range p.Indices {
		buf = wire.AppendRepeatedBytesField(buf, 2, marshalIntSlice(idx))
	}
	buf = wire.AppendBoolField(buf, 3, p.Partial)
	return buf
}

func (p *PrepareState) Unmarshal(dAtA []byte) error {
	*p = PrepareState{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			p.Node = LocalNodeIndex(f.Varint)
		case 2:
			idx, err := unmarshalIntSlice(f.Bytes)
			if err != nil {
				return err
			}
			p.Indices = append(p.Indices, idx)
		case 3:
			p.Partial = f.Bool()
		}
	}
	return nil
}

// SetupReplayPath

func (s SetupReplayPath) Size() int { return len(s.appendTo(nil)) }

func (s SetupReplayPath) Marshal() ([]byte, error) { return s.appendTo(nil), nil }

func (s SetupReplayPath) MarshalTo(dAtA []byte) (int, error) { return copy(dAtA, s.appendTo(nil)), nil }

func (s SetupReplayPath) appendTo(buf []byte) []byte {
	buf = wire.AppendVarintField(buf, 1, uint64(s.Tag))
	for _, node := range s.Nodes {
		buf = wire.AppendRepeatedVarintField(buf, 2, uint64(node))
	}
	for _, t := range s.Trigger {
		buf = wire.AppendRepeatedVarintField(buf, 3, uint64(t))
	}
	return buf
}

func (s *SetupReplayPath) Unmarshal(dAtA []byte) error {
	*s = SetupReplayPath{}
	for len(dAtA) > 0 {
		f, n, err := wire.Next(dAtA)
		if err != nil {
			return err
		}
		dAtA = dAtA[n:]
		switch f.Num {
		case 1:
			s.Tag = Tag(f.Varint)
		case 2:
			s.Nodes = append(s.Nodes, LocalNodeIndex(f.Varint))
		case 3:
			s.Trigger = append(s.Trigger, int(f.Varint))
		}
	}
	return nil
}
