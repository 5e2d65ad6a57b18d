// Package htmlasset embeds the browser terminal page served for every
// request other than a /term upgrade: a single self-contained page with
// no external JS dependency (no xterm.js) — inline <script> that opens a
// WebSocket to /term, sends keystrokes as binary frames, and renders
// received binary frames as text.
package htmlasset

import _ "embed"

//go:embed page.html
var page []byte

// Page returns the embedded HTML document bytes. The caller owns framing
// it with its own Content-Length/Content-Type headers.
func Page() []byte {
	return page
}
