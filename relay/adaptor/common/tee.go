package common

import (
	"bytes"
	"io"
)

// sseTee passes the upstream body through unchanged while feeding every
// complete `data:` payload to the parser. Parsing happens on the reader's
// goroutine, so closing the client-facing side stops the parser with it and
// upstream bytes are never consumed faster than the client reads them.
type sseTee struct {
	upstream io.ReadCloser
	parse    func(data []byte)
	pending  []byte
}

func newSSETee(upstream io.ReadCloser, parse func(data []byte)) io.ReadCloser {
	return &sseTee{upstream: upstream, parse: parse}
}

func (t *sseTee) Read(p []byte) (int, error) {
	n, err := t.upstream.Read(p)
	if n > 0 {
		t.scan(p[:n])
	}
	return n, err
}

var dataPrefix = []byte("data:")

func (t *sseTee) scan(chunk []byte) {
	t.pending = append(t.pending, chunk...)
	for {
		idx := bytes.IndexByte(t.pending, '\n')
		if idx < 0 {
			return
		}
		line := bytes.TrimRight(t.pending[:idx], "\r")
		t.pending = t.pending[idx+1:]

		if !bytes.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := bytes.TrimSpace(line[len(dataPrefix):])
		if len(payload) == 0 || bytes.Equal(payload, []byte("[DONE]")) {
			continue
		}
		t.parse(payload)
	}
}

func (t *sseTee) Close() error {
	return t.upstream.Close()
}
