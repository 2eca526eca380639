package monitor

import (
	"strings"

	"github.com/Veraticus/idlewatch/pkg/interfaces"
)

// maxCarry bounds the bytes held across chunks while waiting for the
// rest of a split escape sequence. Anything longer is discarded.
const maxCarry = 512

type seqKind int

const (
	seqNone seqKind = iota
	seqClear
	seqCursorHome
	seqEraseBelow
	seqTitle
	seqFocusIn
	seqFocusOut
)

type seqEvent struct {
	kind  seqKind
	title string
}

// SequenceDetector finds the terminal escape sequences the wrapper
// cares about in a byte stream: screen clears, title changes, and
// focus reporting. Sequences may be split across chunk boundaries, so
// an unfinished sequence is carried over to the next call.
type SequenceDetector struct {
	buf []byte

	// prevHome remembers that the last parsed sequence was a cursor
	// home, so home followed immediately by erase-below reads as a
	// full clear. The pair may straddle a chunk boundary.
	prevHome bool
}

// NewSequenceDetector creates a detector with an empty carry buffer.
func NewSequenceDetector() *SequenceDetector {
	return &SequenceDetector{buf: make([]byte, 0, 256)}
}

// Scan analyzes a chunk and invokes handler callbacks for recognized
// sequences in stream order. Screen clears fire at most once per call.
// It returns the number of bytes that were not part of a focus report,
// which the input path uses to tell keystrokes from terminal chatter.
func (d *SequenceDetector) Scan(data []byte, handler interfaces.ScreenEventHandler) int {
	d.buf = append(d.buf, data...)

	nonFocus := 0
	cleared := false
	i := 0
	for i < len(d.buf) {
		if d.buf[i] != 0x1b {
			nonFocus++
			i++
			d.prevHome = false
			continue
		}
		consumed, complete, ev := parseSequence(d.buf[i:])
		if !complete {
			break
		}
		switch ev.kind {
		case seqClear:
			cleared = true
			nonFocus += consumed
		case seqEraseBelow:
			if d.prevHome {
				cleared = true
			}
			nonFocus += consumed
		case seqTitle:
			if handler != nil {
				handler.HandleTitleChange(ev.title)
			}
			nonFocus += consumed
		case seqFocusIn:
			if handler != nil {
				handler.HandleFocusIn()
			}
		case seqFocusOut:
			if handler != nil {
				handler.HandleFocusOut()
			}
		default:
			nonFocus += consumed
		}
		d.prevHome = ev.kind == seqCursorHome
		i += consumed
	}

	if cleared && handler != nil {
		handler.HandleScreenClear()
	}

	tail := d.buf[i:]
	if len(tail) > maxCarry {
		nonFocus += len(tail)
		tail = nil
	}
	d.buf = append(d.buf[:0], tail...)
	return nonFocus
}

// parseSequence decodes one escape sequence at the start of data,
// which must begin with ESC. complete is false when more bytes are
// needed to finish the sequence.
func parseSequence(data []byte) (consumed int, complete bool, ev seqEvent) {
	if len(data) < 2 {
		return 0, false, seqEvent{}
	}
	switch data[1] {
	case '[':
		return parseCSI(data)
	case ']':
		return parseOSC(data)
	case 'c': // RIS resets the whole terminal
		return 2, true, seqEvent{kind: seqClear}
	default:
		return 2, true, seqEvent{}
	}
}

// parseCSI decodes ESC[ sequences. The terminator is the first byte in
// 0x40..0x7e after the parameters.
func parseCSI(data []byte) (int, bool, seqEvent) {
	i := 2
	for i < len(data) && !isCSITerminator(data[i]) {
		i++
	}
	if i >= len(data) {
		return 0, false, seqEvent{}
	}
	params := string(data[2:i])
	length := i + 1
	switch data[i] {
	case 'I':
		if params == "" {
			return length, true, seqEvent{kind: seqFocusIn}
		}
	case 'O':
		if params == "" {
			return length, true, seqEvent{kind: seqFocusOut}
		}
	case 'H':
		if params == "" || params == "1;1" {
			return length, true, seqEvent{kind: seqCursorHome}
		}
	case 'J':
		// 2J and 3J wipe the visible screen on their own. Erase-below
		// (J or 0J) only counts when it rides on a cursor home, which
		// is the pair the clear(1) terminfo entry emits.
		if params == "2" || params == "3" {
			return length, true, seqEvent{kind: seqClear}
		}
		if params == "" || params == "0" {
			return length, true, seqEvent{kind: seqEraseBelow}
		}
	}
	return length, true, seqEvent{}
}

// parseOSC decodes ESC] sequences, which end with BEL or ST (ESC\).
func parseOSC(data []byte) (int, bool, seqEvent) {
	for i := 2; i < len(data); i++ {
		switch {
		case data[i] == 0x07:
			return i + 1, true, titleEvent(data[2:i])
		case data[i] == 0x1b:
			if i+1 >= len(data) {
				return 0, false, seqEvent{}
			}
			if data[i+1] == '\\' {
				return i + 2, true, titleEvent(data[2:i])
			}
			// A stray ESC aborts the OSC; rescan from it.
			return i, true, seqEvent{}
		}
	}
	return 0, false, seqEvent{}
}

// titleEvent interprets an OSC payload. Codes 0 and 2 set the window
// title; everything else is ignored.
func titleEvent(payload []byte) seqEvent {
	s := string(payload)
	if rest, ok := strings.CutPrefix(s, "0;"); ok {
		return seqEvent{kind: seqTitle, title: rest}
	}
	if rest, ok := strings.CutPrefix(s, "2;"); ok {
		return seqEvent{kind: seqTitle, title: rest}
	}
	return seqEvent{}
}

// isCSITerminator returns true if the byte terminates a CSI sequence.
func isCSITerminator(b byte) bool {
	return b >= 0x40 && b <= 0x7e
}
