// Package protocol implements the escape-sequence-delimited envelope format
// the controller's line-oriented log filter parses out of the job's stdout
// stream.
//
// One envelope is: ESC[K, then the base64 of the JSON payload written in
// chunks of at most 78 bytes, each chunk immediately followed by
// ESC[<n>D where <n> is the ASCII decimal byte length of that chunk, then a
// closing ESC[K. Base64 neutralizes any control bytes the payload may
// contain, and the chunk lengths are computed after encoding, so a consumer
// can recover the payload byte-exactly even when a payload value embeds the
// marker sequence itself. A terminal interprets the whole envelope as
// erase-line/cursor-left noise, which keeps plain `tail -f` output readable.
package protocol

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mdrun/mdrun/pkg/events"
)

// ErrEncoding indicates an event payload that cannot be serialized. This is
// a defect in the upstream event producer, not user input.
var ErrEncoding = errors.New("protocol: event payload not serializable")

// ErrTruncated indicates a byte stream that ends inside an envelope.
var ErrTruncated = errors.New("protocol: truncated envelope")

// ErrFraming indicates bytes that violate the chunk/length framing.
var ErrFraming = errors.New("protocol: invalid envelope framing")

const (
	marker = "\x1b[K"
	// maxChunk is the longest base64 run written before a length suffix.
	maxChunk = 78
)

// Encode serializes one event into its wire envelope. Encoding is
// deterministic: identical events produce identical bytes.
func Encode(ev events.Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncoding, err)
	}

	b64 := base64.StdEncoding.EncodeToString(payload)

	var buf bytes.Buffer
	buf.Grow(len(b64) + len(b64)/maxChunk*8 + 16)
	buf.WriteString(marker)
	for off := 0; off < len(b64); off += maxChunk {
		end := off + maxChunk
		if end > len(b64) {
			end = len(b64)
		}
		chunk := b64[off:end]
		buf.WriteString(chunk)
		buf.WriteString("\x1b[")
		buf.WriteString(strconv.Itoa(len(chunk)))
		buf.WriteByte('D')
	}
	buf.WriteString(marker)
	return buf.Bytes(), nil
}

// Decode splits a byte stream into decoded event payloads and the plain text
// interleaved between envelopes. It is the conforming consumer-side parser:
// it locates envelopes using only the control-escape markers and the chunk
// lengths, without understanding the payload schema.
func Decode(stream []byte) ([]map[string]any, []byte, error) {
	var (
		payloads []map[string]any
		text     []byte
	)
	for {
		i := bytes.Index(stream, []byte(marker))
		if i < 0 {
			text = append(text, stream...)
			return payloads, text, nil
		}
		text = append(text, stream[:i]...)
		rest := stream[i+len(marker):]

		b64, after, err := readChunks(rest)
		if err != nil {
			return payloads, text, err
		}
		raw, err := base64.StdEncoding.DecodeString(string(b64))
		if err != nil {
			return payloads, text, fmt.Errorf("%w: %v", ErrFraming, err)
		}
		var payload map[string]any
		if err := json.Unmarshal(raw, &payload); err != nil {
			return payloads, text, fmt.Errorf("%w: %v", ErrFraming, err)
		}
		payloads = append(payloads, payload)
		stream = after
	}
}

// readChunks consumes "<chunk>ESC[<n>D" groups until the closing marker and
// returns the reassembled base64 bytes and the remainder of the stream.
func readChunks(b []byte) (data, rest []byte, err error) {
	for {
		if bytes.HasPrefix(b, []byte(marker)) {
			return data, b[len(marker):], nil
		}
		esc := bytes.Index(b, []byte("\x1b["))
		if esc < 0 {
			return nil, nil, ErrTruncated
		}
		chunk := b[:esc]
		b = b[esc+2:]
		d := bytes.IndexByte(b, 'D')
		if d < 0 {
			return nil, nil, ErrTruncated
		}
		n, convErr := strconv.Atoi(string(b[:d]))
		if convErr != nil || n != len(chunk) {
			return nil, nil, ErrFraming
		}
		data = append(data, chunk...)
		b = b[d+1:]
	}
}
