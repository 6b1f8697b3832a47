package input

import "unicode/utf8"

// Decoder turns raw terminal input into key names. It keeps an incomplete
// escape sequence or UTF-8 rune at the end of a chunk pending until the
// next chunk, so a sequence split across reads still decodes as one key.
//
// Arrow keys arrive as ESC [ A / ESC [ B (or ESC O A / ESC O B in
// application mode); an ESC not followed by a sequence is the escape key.
// Ctrl-C maps to quit. Unrecognized escape sequences are discarded.
type Decoder struct {
	pending []byte
}

// Pending reports whether bytes are held back waiting for more input.
func (d *Decoder) Pending() bool { return len(d.pending) > 0 }

// Feed decodes b after any pending bytes.
func (d *Decoder) Feed(b []byte) []string {
	if len(d.pending) > 0 {
		b = append(d.pending, b...)
		d.pending = nil
	}

	var keys []string
	for i := 0; i < len(b); {
		c := b[i]
		switch {
		case c == 0x1b:
			if i+1 >= len(b) {
				d.hold(b[i:])
				return keys
			}
			if b[i+1] != '[' && b[i+1] != 'O' {
				keys = append(keys, KeyEsc)
				i++
				continue
			}
			// Skip parameters up to the final byte.
			j := i + 2
			for j < len(b) && (b[j] < 0x40 || b[j] > 0x7e) {
				j++
			}
			if j >= len(b) {
				d.hold(b[i:])
				return keys
			}
			switch b[j] {
			case 'A':
				keys = append(keys, KeyUp)
			case 'B':
				keys = append(keys, KeyDown)
			}
			i = j + 1
		case c == 0x03:
			keys = append(keys, KeyQuit)
			i++
		case c == '\r' || c == '\n':
			keys = append(keys, KeyEnter)
			i++
		case c < 0x20 || c == 0x7f:
			i++
		default:
			if !utf8.FullRune(b[i:]) {
				d.hold(b[i:])
				return keys
			}
			r, size := utf8.DecodeRune(b[i:])
			if r != utf8.RuneError {
				keys = append(keys, string(r))
			}
			i += size
		}
	}
	return keys
}

// Flush gives up waiting: a lone pending ESC becomes the escape key, any
// other partial input is dropped.
func (d *Decoder) Flush() []string {
	p := d.pending
	d.pending = nil
	if len(p) == 1 && p[0] == 0x1b {
		return []string{KeyEsc}
	}
	return nil
}

func (d *Decoder) hold(b []byte) {
	d.pending = append([]byte(nil), b...)
}

// Decode decodes one complete chunk of input.
func Decode(b []byte) []string {
	var d Decoder
	return append(d.Feed(b), d.Flush()...)
}
