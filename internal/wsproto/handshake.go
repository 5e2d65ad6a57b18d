// Package wsproto implements the RFC 6455 handshake and frame codec the
// bridge needs. The accept-key computation is built on
// internal/wscrypto's hand-rolled SHA-1/Base64 rather than crypto/sha1 and
// encoding/base64, and the frame encode/decode logic is narrowed to the
// single-frame, no-fragmentation, binary-only semantics this server's
// terminal sessions need.
package wsproto

import (
	"errors"

	"github.com/momentics/webterm/internal/httpreq"
	"github.com/momentics/webterm/internal/ksys"
	"github.com/momentics/webterm/internal/wscrypto"
)

// WebSocketGUID is the fixed RFC 6455 handshake GUID.
const WebSocketGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

var (
	ErrNoKey      = errors.New("no key")
	ErrKeyTooLong = errors.New("key too long")
)

const handshakeKeyScratchSize = 128

// AcceptKey computes the Sec-WebSocket-Accept value for clientKey: SHA-1
// over key+GUID, Base64-encoded. Fails with ErrKeyTooLong if the
// concatenation cannot fit the 128-byte scratch buffer.
func AcceptKey(clientKey []byte) (string, error) {
	if len(clientKey)+len(WebSocketGUID) > handshakeKeyScratchSize {
		return "", ErrKeyTooLong
	}
	var scratch [handshakeKeyScratchSize]byte
	n := copy(scratch[:], clientKey)
	n += copy(scratch[n:], WebSocketGUID)

	var digest [wscrypto.Sha1Size]byte
	wscrypto.Sha1Sum(digest[:], scratch[:n])

	var b64 [64]byte
	written := wscrypto.Base64Encode(b64[:], digest[:])
	return string(b64[:written]), nil
}

// DoHandshake performs the server side of the WebSocket handshake over an
// already-accepted TCP socket fd, given the raw HTTP request bytes: it
// extracts Sec-WebSocket-Key, computes the accept key, and sends the fixed
// 101 response in a single send_all. No other headers are emitted.
func DoHandshake(fd int, req []byte) error {
	key := httpreq.Header(req, "Sec-WebSocket-Key")
	if key == nil {
		return ErrNoKey
	}
	accept, err := AcceptKey(key)
	if err != nil {
		return err
	}
	resp := "HTTP/1.1 101 Switching Protocols\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Accept: " + accept + "\r\n\r\n"
	return ksys.SendAll(fd, []byte(resp))
}
