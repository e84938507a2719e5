// Package sse decodes a server-sent-event byte stream into discrete events.
//
// The decoder is pull-based: the source is read only when the consumer asks
// for the next event, and an event is never emitted before the newline that
// terminates its line has been read. Only "data: " and "event: " lines are
// recognized; blank lines (record separators) and any other line are dropped.
package sse

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"strings"
)

// ReadSize is the number of bytes requested from the source per read.
const ReadSize = 1024

const (
	dataPrefix  = "data: "
	eventPrefix = "event: "
)

// Event is one decoded SSE line. Exactly one of Name and Data is set.
type Event struct {
	// Name is the value of an "event: " line.
	Name string
	// Data is the value of a "data: " line.
	Data string
}

// HasData reports whether the event came from a "data: " line.
func (e Event) HasData() bool {
	return e.Data != ""
}

// Decoder turns a byte stream into Events.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	src  io.Reader
	buf  []byte
	read []byte
	eof  bool
}

// NewDecoder creates a decoder reading from src.
func NewDecoder(src io.Reader) *Decoder {
	return &Decoder{
		src:  src,
		read: make([]byte, ReadSize),
	}
}

// Next returns the next event in stream order. It returns io.EOF once the
// source is exhausted; a trailing line without a newline is discarded.
// Any other error is a failure of the underlying source.
func (d *Decoder) Next() (Event, error) {
	for {
		for {
			line, ok := d.nextLine()
			if !ok {
				break
			}
			if event, ok := parseLine(line); ok {
				return event, nil
			}
		}

		if d.eof {
			d.buf = nil
			return Event{}, io.EOF
		}

		if err := d.fill(); err != nil {
			return Event{}, err
		}
	}
}

// Events returns the remaining events as a sequence. Iteration stops at end of
// stream; a source failure is yielded once as the final element.
func (d *Decoder) Events() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			event, err := d.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(event, nil) {
				return
			}
		}
	}
}

// fill performs exactly one bounded read from the source.
func (d *Decoder) fill() error {
	n, err := d.src.Read(d.read)
	d.buf = append(d.buf, d.read[:n]...)
	if errors.Is(err, io.EOF) {
		d.eof = true
		return nil
	}
	return err
}

// nextLine removes and returns the buffered prefix up to the next newline.
func (d *Decoder) nextLine() (string, bool) {
	i := bytes.IndexByte(d.buf, '\n')
	if i < 0 {
		return "", false
	}
	line := string(d.buf[:i])
	d.buf = d.buf[i+1:]
	return line, true
}

func parseLine(line string) (Event, bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Event{}, false
	}
	if data, ok := strings.CutPrefix(line, dataPrefix); ok {
		return Event{Data: data}, true
	}
	if name, ok := strings.CutPrefix(line, eventPrefix); ok {
		return Event{Name: name}, true
	}
	return Event{}, false
}
