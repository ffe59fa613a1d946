// Package httpproto implements the HTTP/1.1 upper protocol: request/response
// header parsing and the session.Protocol that drives VScript programs over
// a connection's body bytes, grounded on original_source/src/http.hpp and
// http_header.hpp.
//
// The parser is hand-rolled rather than built on net/http: net/http's
// server and request readers own the connection lifecycle end to end and
// cannot be driven incrementally, byte range by byte range, against a
// buffer that also needs to be handed off mid-stream to a VScript program
// parser. A partial, resumable header parser has no standard-library
// equivalent; see DESIGN.md for the fuller justification.
package httpproto

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseStatus is the outcome of an attempted header parse.
type ParseStatus int

const (
	NeedMoreData ParseStatus = iota
	Failed
	Success
)

// RequestHeader holds the fields the HTTP protocol layer needs out of a
// parsed request: the target URL, the declared body length, and whether
// the connection should be kept open afterward.
type RequestHeader struct {
	Method        string
	URL           string
	ContentLength uint64
	KeepAlive     bool
}

// TryParse looks for the blank-line terminator ("\r\n\r\n") in buf and, if
// found, parses the request line and headers preceding it. It returns the
// number of leading bytes of buf that made up the header block.
func TryParse(buf []byte) (hdr RequestHeader, consumed int, status ParseStatus) {
	idx := bytes.Index(buf, []byte("\r\n\r\n"))
	if idx < 0 {
		return RequestHeader{}, 0, NeedMoreData
	}

	lines := strings.Split(string(buf[:idx]), "\r\n")
	if len(lines) == 0 || lines[0] == "" {
		return RequestHeader{}, 0, Failed
	}

	requestLine := strings.Fields(lines[0])
	if len(requestLine) < 2 {
		return RequestHeader{}, 0, Failed
	}
	hdr.Method = requestLine[0]
	hdr.URL = requestLine[1]
	hdr.KeepAlive = true // HTTP/1.1 default

	for _, line := range lines[1:] {
		if line == "" {
			continue
		}
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			return RequestHeader{}, 0, Failed
		}
		key := strings.ToLower(strings.TrimSpace(line[:colon]))
		val := strings.TrimSpace(line[colon+1:])
		switch key {
		case "content-length":
			n, err := strconv.ParseUint(val, 10, 64)
			if err != nil {
				return RequestHeader{}, 0, Failed
			}
			hdr.ContentLength = n
		case "connection":
			hdr.KeepAlive = !strings.EqualFold(val, "close")
		}
	}

	return hdr, idx + 4, Success
}

// statusReason is a subset of the status-code-to-reason-phrase table from
// original_source/src/http_header.hpp, covering the codes this server can
// actually emit plus the common ones a reader would expect to see named.
var statusReason = map[int]string{
	100: "Continue",
	101: "Switching Protocols",
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	408: "Request Timeout",
	413: "Payload Too Large",
	500: "Internal Server Error",
	501: "Not Implemented",
	502: "Bad Gateway",
	503: "Service Unavailable",
	504: "Gateway Timeout",
	505: "HTTP Version Not Supported",
}

func reasonFor(code int) string {
	if r, ok := statusReason[code]; ok {
		return r
	}
	return "Unknown"
}

// GenerateResponseHeader renders the status line plus Content-Length and
// Connection headers for a response with the given code, body length, and
// keep-alive setting.
func GenerateResponseHeader(code int, length uint64, keepAlive bool) []byte {
	conn := "Close"
	if keepAlive {
		conn = "Keep-Alive"
	}
	return []byte(fmt.Sprintf(
		"HTTP/1.1 %d %s\r\nContent-Length: %d\r\nConnection: %s\r\n\r\n",
		code, reasonFor(code), length, conn,
	))
}
