package intercept

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
)

// HeaderOffline marks responses synthesized while the network is down.
const HeaderOffline = "X-Tasksync-Offline"

// NoCachedDataBody is the payload returned for an uncached task-API read
// while offline.
const NoCachedDataBody = `{"error": "No cached data available."}`

const offlineHTML = `<h1>Offline</h1><p>The requested content is unavailable offline.</p>`

func noCachedData(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "application/json", NoCachedDataBody)
}

func offlinePage(req *http.Request) *http.Response {
	return synthesize(req, http.StatusServiceUnavailable, "text/html; charset=utf-8", offlineHTML)
}

func synthesize(req *http.Request, status int, contentType, body string) *http.Response {
	h := make(http.Header)
	h.Set("Content-Type", contentType)
	h.Set(HeaderOffline, "1")
	return &http.Response{
		Status:        fmt.Sprintf("%d %s", status, http.StatusText(status)),
		StatusCode:    status,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        h,
		Body:          io.NopCloser(bytes.NewReader([]byte(body))),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}

// IsOffline reports whether resp was synthesized by the transport.
func IsOffline(resp *http.Response) bool {
	return resp != nil && resp.Header.Get(HeaderOffline) != ""
}
