package cache

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/fxamacker/cbor/v2"
)

// HeaderCache marks responses served from the cache store.
const HeaderCache = "X-Tasksync-Cache"

// Snapshot is a complete stored response: status, headers and body.
type Snapshot struct {
	Key      string      `cbor:"0,keyasint"`
	Status   int         `cbor:"1,keyasint"`
	Header   http.Header `cbor:"2,keyasint"`
	Body     []byte      `cbor:"3,keyasint"`
	StoredAt int64       `cbor:"4,keyasint"` // unix milliseconds
}

// NewSnapshot reads resp's body into a snapshot and gives resp a fresh body
// with the same bytes, so the caller can still return it.
func NewSnapshot(resp *http.Response) (Snapshot, error) {
	var body []byte
	if resp.Body != nil {
		var err error
		body, err = io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return Snapshot{}, fmt.Errorf("failed to read response body: %w", err)
		}
	}
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))

	return Snapshot{
		Status:   resp.StatusCode,
		Header:   resp.Header.Clone(),
		Body:     body,
		StoredAt: time.Now().UnixMilli(),
	}, nil
}

// Response rebuilds an *http.Response for req from the snapshot.
func (s Snapshot) Response(req *http.Request) *http.Response {
	header := s.Header.Clone()
	if header == nil {
		header = make(http.Header)
	}
	header.Set(HeaderCache, "hit")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", s.Status, http.StatusText(s.Status)),
		StatusCode:    s.Status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(s.Body)),
		ContentLength: int64(len(s.Body)),
		Request:       req,
	}
}

// Time reports when the snapshot was stored.
func (s Snapshot) Time() time.Time {
	return time.UnixMilli(s.StoredAt)
}

func (s Snapshot) encode() ([]byte, error) {
	return cbor.Marshal(s)
}

func decodeSnapshot(data []byte) (Snapshot, error) {
	var s Snapshot
	if err := cbor.Unmarshal(data, &s); err != nil {
		return Snapshot{}, fmt.Errorf("failed to decode cached response: %w", err)
	}
	return s, nil
}
