package completions

import (
	"bytes"
	"encoding/json"
	"io"
	"iter"
	"log/slog"
	"time"

	"github.com/florianilch/copilot-proxy/internal/sse"
)

// DoneSentinel is the data payload that ends a stream gracefully.
const DoneSentinel = "[DONE]"

// Stream decodes body into a lazy sequence of chunks.
//
// Iteration ends at the [DONE] sentinel or at end of stream. Records that are
// not JSON objects are skipped; pure "event:" records are ignored. Only a
// failure of the underlying source is yielded as an error, after which the
// sequence ends. Closing body is the caller's responsibility.
func Stream(body io.Reader) iter.Seq2[*Chunk, error] {
	return func(yield func(*Chunk, error) bool) {
		decoder := sse.NewDecoder(body)
		for event, err := range decoder.Events() {
			if err != nil {
				yield(nil, err)
				return
			}
			if !event.HasData() {
				continue
			}
			if event.Data == DoneSentinel {
				return
			}

			chunk, ok := parseChunk(event.Data)
			if !ok {
				slog.Debug("skipping malformed stream record", "bytes", len(event.Data))
				continue
			}
			if !yield(chunk, nil) {
				return
			}
		}
	}
}

// parseChunk decodes a data payload and fills the defaults a sparse chunk omits.
func parseChunk(data string) (*Chunk, bool) {
	raw := bytes.TrimSpace([]byte(data))
	if len(raw) == 0 || raw[0] != '{' {
		return nil, false
	}

	var chunk Chunk
	if err := json.Unmarshal(raw, &chunk); err != nil {
		return nil, false
	}

	if chunk.Object == "" {
		chunk.Object = ObjectChunk
	}
	if chunk.Created == 0 {
		chunk.Created = time.Now().Unix()
	}
	if chunk.Model == "" {
		chunk.Model = "unknown"
	}
	return &chunk, true
}
