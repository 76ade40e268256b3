// Package sse decodes OpenAI-compatible chat completion streams framed as
// Server-Sent Events ("data: {json}\n\n") into ordered text deltas.
package sse

import (
	"encoding/json"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

const (
	dataPrefix   = "data: "
	doneSentinel = "[DONE]"
)

type chunkPayload struct {
	Choices []struct {
		Delta struct {
			Content *string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// Decoder is a push-style SSE decoder. Bytes go in through Feed in arrival
// order, deltas come out in the same order. Not safe for concurrent use.
type Decoder struct {
	utf8    transform.Transformer
	pending []byte // trailing bytes of an incomplete UTF-8 sequence
	buf     string // decoded text not yet consumed as complete lines
	done    bool

	// retry holds the last line pushed back after a JSON parse failure; a
	// second failure on the same line drops it.
	retry string
}

func NewDecoder() *Decoder {
	return &Decoder{utf8: unicode.UTF8.NewDecoder()}
}

// Done reports whether the [DONE] sentinel has been seen.
func (d *Decoder) Done() bool { return d.done }

// Feed appends chunk to the stream and returns the deltas completed by it.
// After the sentinel is seen Feed ignores further input.
func (d *Decoder) Feed(chunk []byte) []string {
	if d.done {
		return nil
	}
	d.buf += d.decode(chunk, false)
	return d.lines()
}

// Flush ends the stream: undecodable trailing bytes become U+FFFD and a final
// line without a terminating newline is processed.
func (d *Decoder) Flush() []string {
	if d.done {
		return nil
	}
	d.buf += d.decode(nil, true)
	if d.buf != "" && !strings.HasSuffix(d.buf, "\n") {
		d.buf += "\n"
	}
	var deltas []string
	for d.buf != "" && !d.done {
		deltas = append(deltas, d.lines()...)
	}
	d.buf = ""
	return deltas
}

func (d *Decoder) lines() []string {
	var deltas []string
	for {
		nl := strings.IndexByte(d.buf, '\n')
		if nl < 0 {
			return deltas
		}
		line := d.buf[:nl]
		d.buf = d.buf[nl+1:]

		line = strings.TrimSuffix(line, "\r")
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if payload == doneSentinel {
			d.done = true
			return deltas
		}

		var p chunkPayload
		if err := json.Unmarshal([]byte(payload), &p); err != nil {
			if d.retry == line {
				d.retry = ""
				continue
			}
			d.retry = line
			d.buf = line + "\n" + d.buf
			return deltas
		}
		d.retry = ""
		if len(p.Choices) > 0 && p.Choices[0].Delta.Content != nil && *p.Choices[0].Delta.Content != "" {
			deltas = append(deltas, *p.Choices[0].Delta.Content)
		}
	}
}

// decode converts chunk to text, holding back an incomplete trailing UTF-8
// sequence until the next call unless atEOF.
func (d *Decoder) decode(chunk []byte, atEOF bool) string {
	src := make([]byte, 0, len(d.pending)+len(chunk))
	src = append(src, d.pending...)
	src = append(src, chunk...)
	d.pending = nil
	if len(src) == 0 {
		return ""
	}

	var out strings.Builder
	dst := make([]byte, 3*len(src)+utf8.UTFMax)
	for {
		nDst, nSrc, err := d.utf8.Transform(dst, src, atEOF)
		out.Write(dst[:nDst])
		src = src[nSrc:]
		switch {
		case err == nil:
			return out.String()
		case errors.Is(err, transform.ErrShortSrc):
			d.pending = append(d.pending, src...)
			return out.String()
		case errors.Is(err, transform.ErrShortDst) && (nDst > 0 || nSrc > 0):
			continue
		default:
			// unreachable for the UTF-8 decoder; keep the raw bytes
			out.Write(src)
			return out.String()
		}
	}
}
