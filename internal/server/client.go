package server

import (
	"bufio"
	"errors"
	"net"
	"sync"

	"storj.io/flowdb/internal/channel"
	"storj.io/flowdb/pkg/flowdb"
	"storj.io/flowdb/pkg/value"
)

// Client is a connection to a Server, serializing requests the same
// way handleConn deserializes them.
type Client struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Dial connects to a Server listening at addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, r: bufio.NewReader(conn)}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() error { return c.conn.Close() }

func (c *Client) roundTrip(req channel.Frame) (channel.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, err := c.conn.Write(channel.AppendFrame(nil, req)); err != nil {
		return channel.Frame{}, err
	}
	return readFrame(c.r)
}

// Write sends a write-ingress request and returns the decoded ack.
func (c *Client) Write(base string, rows []value.Row, token []byte) (flowdb.AckResult, error) {
	body, err := encodeValue(writeRequest{Base: base, Rows: rows, Token: token})
	if err != nil {
		return flowdb.AckResult{}, err
	}
	respFrame, err := c.roundTrip(frame(kindWriteReq, body))
	if err != nil {
		return flowdb.AckResult{}, err
	}
	var resp writeResponse
	if err := decodeValue(respFrame.Data, &resp); err != nil {
		return flowdb.AckResult{}, err
	}
	if resp.Err != "" {
		return flowdb.AckResult{}, errors.New(resp.Err)
	}
	return flowdb.AckResult{
		Timestamp: resp.Timestamp,
		Status:    flowdb.Status(resp.Status),
		Reason:    resp.Reason,
		Token:     resp.Token,
	}, nil
}

// Lookup sends a read-surface request and returns the decoded result
// (minus a Ticket, which never crosses the wire — see lookupResponse).
func (c *Client) Lookup(view string, key value.Row) (flowdb.LookupResult, error) {
	body, err := encodeValue(lookupRequest{View: view, Key: key})
	if err != nil {
		return flowdb.LookupResult{}, err
	}
	respFrame, err := c.roundTrip(frame(kindLookupReq, body))
	if err != nil {
		return flowdb.LookupResult{}, err
	}
	var resp lookupResponse
	if err := decodeValue(respFrame.Data, &resp); err != nil {
		return flowdb.LookupResult{}, err
	}
	if resp.Err != "" {
		return flowdb.LookupResult{}, errors.New(resp.Err)
	}
	return flowdb.LookupResult{Outcome: flowdb.Outcome(resp.Outcome), Rows: resp.Rows}, nil
}
