package sse

import (
	"errors"
	"io"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader returns one predefined chunk per Read call and counts reads.
type chunkReader struct {
	chunks []string
	reads  int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	r.reads++
	if len(r.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, r.chunks[0])
	r.chunks[0] = r.chunks[0][n:]
	if r.chunks[0] == "" {
		r.chunks = r.chunks[1:]
	}
	return n, nil
}

func collect(t *testing.T, d *Decoder) []Event {
	t.Helper()
	var events []Event
	for event, err := range d.Events() {
		require.NoError(t, err)
		events = append(events, event)
	}
	return events
}

func TestDecoder_SplitAnywhere(t *testing.T) {
	const stream = "data: {\"a\":1}\n\ndata: {\"a\":2}\n\n"
	want := []Event{{Data: `{"a":1}`}, {Data: `{"a":2}`}}

	for split := 0; split <= len(stream); split++ {
		r := &chunkReader{chunks: []string{stream[:split], stream[split:]}}
		assert.Equal(t, want, collect(t, NewDecoder(r)), "split at %d", split)
	}
}

func TestDecoder_OneByteReads(t *testing.T) {
	const stream = "event: ping\ndata: hello\n\n: comment\nid: 7\ndata: world\n"
	d := NewDecoder(iotest.OneByteReader(strings.NewReader(stream)))

	assert.Equal(t, []Event{
		{Name: "ping"},
		{Data: "hello"},
		{Data: "world"},
	}, collect(t, d))
}

func TestDecoder_TrimsAndDropsUnknownLines(t *testing.T) {
	const stream = "  data: padded  \r\n\r\nretry: 100\ndata:nospace\nevent: done\n"
	d := NewDecoder(strings.NewReader(stream))

	assert.Equal(t, []Event{
		{Data: "padded"},
		{Name: "done"},
	}, collect(t, d))
}

func TestDecoder_DiscardsTrailingPartialLine(t *testing.T) {
	d := NewDecoder(strings.NewReader("data: complete\ndata: partial"))

	assert.Equal(t, []Event{{Data: "complete"}}, collect(t, d))

	_, err := d.Next()
	assert.ErrorIs(t, err, io.EOF)
}

func TestDecoder_NoEarlyEmission(t *testing.T) {
	r := &chunkReader{chunks: []string{"data: fir", "st\n", "data: second\n"}}
	d := NewDecoder(r)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Data: "first"}, event)
	assert.Equal(t, 2, r.reads, "first event needs its newline")

	event, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, Event{Data: "second"}, event)
	assert.Equal(t, 3, r.reads)
}

func TestDecoder_ReadsLazily(t *testing.T) {
	r := &chunkReader{chunks: []string{"data: a\ndata: b\n", "data: c\n"}}
	d := NewDecoder(r)

	_, err := d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, 1, r.reads, "buffered lines must not trigger reads")
}

func TestDecoder_BoundedReads(t *testing.T) {
	line := "data: " + strings.Repeat("x", 3*ReadSize) + "\n"
	r := &chunkReader{chunks: []string{line}}
	d := NewDecoder(r)

	event, err := d.Next()
	require.NoError(t, err)
	assert.Len(t, event.Data, 3*ReadSize)
	assert.Equal(t, 4, r.reads)
}

func TestDecoder_SourceFailure(t *testing.T) {
	boom := errors.New("connection reset")
	src := io.MultiReader(strings.NewReader("data: ok\n"), iotest.ErrReader(boom))
	d := NewDecoder(src)

	var events []Event
	var gotErr error
	for event, err := range d.Events() {
		if err != nil {
			gotErr = err
			continue
		}
		events = append(events, event)
	}

	assert.Equal(t, []Event{{Data: "ok"}}, events)
	assert.ErrorIs(t, gotErr, boom)
}

func TestDecoder_StopEarly(t *testing.T) {
	r := &chunkReader{chunks: []string{"data: 1\n", "data: 2\n", "data: 3\n"}}
	d := NewDecoder(r)

	for event, err := range d.Events() {
		require.NoError(t, err)
		assert.Equal(t, "1", event.Data)
		break
	}
	assert.Equal(t, 1, r.reads)
}
