// Package httpreq parses just enough of an HTTP/1.1 request to decide
// whether it is a WebSocket upgrade for /term. It works directly over the
// raw bytes of the first recv on a connection — no net/http, no
// bufio.Reader, no copy of the request bytes — since
// net/http assumes a fully-formed io.Reader and allocates an http.Request
// per connection, which a stack-resident 8 KiB request buffer with no
// partial-read assumptions rules out here. The token-matching logic
// (case-insensitive comma-separated Connection tokens) operates on byte
// slices instead of http.Header.
package httpreq

import "bytes"

const (
	crlf     = "\r\n"
	headerEnd = "\r\n\r\n"
)

// IsWebSocketUpgrade reports whether req contains an Upgrade: websocket
// header and a Connection header whose comma-separated tokens include
// "upgrade", both matched case-insensitively.
func IsWebSocketUpgrade(req []byte) bool {
	upgrade := Header(req, "Upgrade")
	if upgrade == nil || !equalFoldASCII(trimSpace(upgrade), []byte("websocket")) {
		return false
	}
	conn := Header(req, "Connection")
	if conn == nil {
		return false
	}
	return headerContainsToken(conn, "upgrade")
}

// PathIsTerm reports whether the request line (bytes up to the first
// \r\n) starts with the literal "GET /term ".
func PathIsTerm(req []byte) bool {
	idx := bytes.Index(req, []byte(crlf))
	var line []byte
	if idx < 0 {
		line = req
	} else {
		line = req[:idx]
	}
	return bytes.HasPrefix(line, []byte("GET /term "))
}

// Header returns the trimmed value of the first header line matching name
// (case-insensitive), stopping at the blank line terminating headers, or
// nil if absent. The returned slice aliases req; no copy is made.
func Header(req []byte, name string) []byte {
	headers := req
	if end := bytes.Index(req, []byte(headerEnd)); end >= 0 {
		headers = req[:end+2]
	}
	// Skip the request line.
	if lineEnd := bytes.Index(headers, []byte(crlf)); lineEnd >= 0 {
		headers = headers[lineEnd+2:]
	} else {
		return nil
	}

	for len(headers) > 0 {
		lineEnd := bytes.Index(headers, []byte(crlf))
		var line []byte
		if lineEnd < 0 {
			line = headers
			headers = nil
		} else {
			line = headers[:lineEnd]
			headers = headers[lineEnd+2:]
		}
		if len(line) == 0 {
			break
		}
		colon := bytes.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		key := line[:colon]
		if equalFoldASCII(trimSpace(key), []byte(name)) {
			return trimSpace(line[colon+1:])
		}
	}
	return nil
}

// headerContainsToken reports whether value's comma-separated, trimmed
// tokens include token (case-insensitive).
func headerContainsToken(value []byte, token string) bool {
	for _, part := range bytes.Split(value, []byte(",")) {
		if equalFoldASCII(trimSpace(part), []byte(token)) {
			return true
		}
	}
	return false
}

func trimSpace(b []byte) []byte {
	for len(b) > 0 && isSpace(b[0]) {
		b = b[1:]
	}
	for len(b) > 0 && isSpace(b[len(b)-1]) {
		b = b[:len(b)-1]
	}
	return b
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t'
}

// equalFoldASCII compares a and b ASCII-case-insensitively. Non-ASCII
// bytes (and therefore non-UTF-8 input) never match, which is treated as
// no match rather than an error.
func equalFoldASCII(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		ca, cb := a[i], b[i]
		if ca >= 0x80 || cb >= 0x80 {
			return false
		}
		if toLowerASCII(ca) != toLowerASCII(cb) {
			return false
		}
	}
	return true
}

func toLowerASCII(c byte) byte {
	if c >= 'A' && c <= 'Z' {
		return c + ('a' - 'A')
	}
	return c
}
