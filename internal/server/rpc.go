package server

import (
	"bytes"
	"encoding/gob"

	"storj.io/flowdb/internal/channel"
	"storj.io/flowdb/pkg/flowdb"
	"storj.io/flowdb/pkg/value"
)

// request/response kinds, used as channel.FrameInfo.Kind so a reader can
// pick a decoder before looking at the payload, same convention
// internal/channel's packet codec uses.
const (
	kindWriteReq      = "write.req"
	kindWriteResp     = "write.resp"
	kindLookupReq     = "lookup.req"
	kindLookupResp    = "lookup.resp"
	kindSubscribeReq  = "subscribe.req"
	kindSubscribeResp = "subscribe.resp" // one frame per streamed record.Record row
)

type writeRequest struct {
	Base  string
	Rows  []value.Row
	Token []byte
}

type writeResponse struct {
	Timestamp int64
	Status    int
	Reason    string
	Token     []byte
	Err       string
}

type lookupRequest struct {
	View string
	Key  value.Row
}

// lookupResponse mirrors flowdb.LookupResult, minus the Ticket: a
// MissTicket is an in-process channel close, not something that
// crosses the wire, so a BlockOn outcome here just tells the client
// "retry shortly" (spec.md §6 leaves the retry policy to the caller;
// a Ticket is only a local optimization over blind polling).
type lookupResponse struct {
	Outcome int
	Rows    []value.Row
	Err     string
}

type subscribeRequest struct {
	View   string
	Buffer int
}

func encodeValue(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decodeValue(data []byte, v interface{}) error {
	return gob.NewDecoder(bytes.NewReader(data)).Decode(v)
}

func frame(kind string, body []byte) channel.Frame {
	return channel.Frame{Header: channel.Header{Info: channel.FrameInfo{Kind: kind}}, Data: body}
}

func ackToResponse(ack flowdb.AckResult, err error) writeResponse {
	resp := writeResponse{Timestamp: ack.Timestamp, Status: int(ack.Status), Reason: ack.Reason, Token: ack.Token}
	if err != nil {
		resp.Err = err.Error()
	}
	return resp
}

func lookupToResponse(res flowdb.LookupResult, err error) lookupResponse {
	resp := lookupResponse{Outcome: int(res.Outcome), Rows: res.Rows}
	if err != nil {
		resp.Err = err.Error()
	}
	return resp
}
