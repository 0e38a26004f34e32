package http3

import (
	"bufio"
	"io"
	"strings"
)

// HTTP09Request is the bare request line an HTTP/0.9 client sends: no
// headers, no version token, just a method and a path.
type HTTP09Request struct {
	Method string
	Path   string
}

// ParseHTTP09Request recognizes a single `GET /path\r\n` request line from
// r. It exists purely for interop with bare HTTP/0.9 clients, reachable
// only through Session.EnableHTTP09 -- it never participates in ordinary
// HTTP/3 framing.
func ParseHTTP09Request(r io.Reader) (*HTTP09Request, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && line == "" {
		return nil, err
	}
	line = strings.TrimRight(line, "\r\n")
	parts := strings.SplitN(line, " ", 2)
	if len(parts) != 2 {
		return nil, streamError(ErrorGeneralProtocolError, "malformed HTTP/0.9 request line")
	}
	return &HTTP09Request{Method: parts[0], Path: parts[1]}, nil
}

// WriteHTTP09Response writes body with no status line, no headers, and no
// framing, the entirety of an HTTP/0.9 response.
func WriteHTTP09Response(w io.Writer, body []byte) error {
	_, err := w.Write(body)
	return err
}
