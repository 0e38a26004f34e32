package http3

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseHTTP09Request(t *testing.T) {
	req, err := ParseHTTP09Request(strings.NewReader("GET /index.html\r\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if req.Method != "GET" || req.Path != "/index.html" {
		t.Fatalf("got %+v", req)
	}
}

func TestParseHTTP09RequestMalformed(t *testing.T) {
	if _, err := ParseHTTP09Request(strings.NewReader("not-a-request-line\r\n")); err == nil {
		t.Fatal("expected an error for a request line with no method/path split")
	}
}

func TestWriteHTTP09Response(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteHTTP09Response(&buf, []byte("hello")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if buf.String() != "hello" {
		t.Fatalf("got %q, want unframed body", buf.String())
	}
}
