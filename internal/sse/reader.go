package sse

import (
	"errors"
	"io"
)

const readChunkSize = 4096

// Reader pulls deltas from an SSE byte stream one at a time.
type Reader struct {
	r     io.Reader
	dec   *Decoder
	queue []string
	buf   []byte
	eof   bool
}

func NewReader(r io.Reader) *Reader {
	return &Reader{r: r, dec: NewDecoder(), buf: make([]byte, readChunkSize)}
}

// Recv returns the next delta, or io.EOF once the stream has ended or the
// [DONE] sentinel has been seen. Any other error comes from the underlying reader.
func (r *Reader) Recv() (string, error) {
	for len(r.queue) == 0 {
		if r.eof || r.dec.Done() {
			return "", io.EOF
		}
		n, err := r.r.Read(r.buf)
		if n > 0 {
			r.queue = append(r.queue, r.dec.Feed(r.buf[:n])...)
		}
		if errors.Is(err, io.EOF) {
			r.eof = true
			r.queue = append(r.queue, r.dec.Flush()...)
			continue
		}
		if err != nil {
			return "", err
		}
	}
	delta := r.queue[0]
	r.queue = r.queue[1:]
	return delta, nil
}

// Collect drains r and returns the concatenated deltas.
func Collect(r io.Reader) (string, error) {
	sr := NewReader(r)
	var out []byte
	for {
		delta, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return string(out), nil
		}
		if err != nil {
			return string(out), err
		}
		out = append(out, delta...)
	}
}
