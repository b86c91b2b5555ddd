package pdf

import (
	"errors"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf16"
)

// errUnterminated is reported for a string or array cut off mid-stream.
var errUnterminated = errors.New("unterminated token")

// tokenKind classifies content stream tokens.
type tokenKind int

const (
	tokOperator tokenKind = iota
	tokNumber
	tokString
	tokArrayStart
	tokArrayEnd
	tokOther
)

type token struct {
	kind tokenKind
	text string
	num  float64
}

// ExtractText returns the text shown by a page content stream.
// Strings drawn with Tj, TJ, ' and " are kept; line moves become newlines.
// Whatever was recovered before a malformed token is returned with the error.
//
//nolint:gocyclo // one case per text operator
func ExtractText(stream []byte) (string, error) {
	s := &scanner{data: stream}
	var (
		out      strings.Builder
		operands []token
		array    []token
		inArray  bool
		lastY    *float64
	)

	newline := func() {
		text := out.String()
		if len(text) > 0 && !strings.HasSuffix(text, "\n") {
			out.WriteByte('\n')
		}
	}
	lastString := func() (string, bool) {
		for i := len(operands) - 1; i >= 0; i-- {
			if operands[i].kind == tokString {
				return operands[i].text, true
			}
		}
		return "", false
	}

	for {
		tok, ok, err := s.next()
		if err != nil {
			return clean(out.String()), err
		}
		if !ok {
			break
		}

		if inArray {
			if tok.kind == tokArrayEnd {
				inArray = false
				operands = append(operands, token{kind: tokOther, text: "array"})
				continue
			}
			array = append(array, tok)
			continue
		}

		switch tok.kind {
		case tokArrayStart:
			inArray = true
			array = array[:0]
			continue
		case tokOperator:
		default:
			operands = append(operands, tok)
			continue
		}

		switch tok.text {
		case "Tj":
			if str, ok := lastString(); ok {
				out.WriteString(str)
			}
		case "'", "\"":
			newline()
			if str, ok := lastString(); ok {
				out.WriteString(str)
			}
		case "TJ":
			for _, item := range array {
				switch item.kind {
				case tokString:
					out.WriteString(item.text)
				case tokNumber:
					// Large negative kerning separates words.
					if item.num < -200 {
						out.WriteByte(' ')
					}
				}
			}
		case "T*":
			newline()
		case "Td", "TD":
			if len(operands) >= 2 && operands[len(operands)-1].num != 0 {
				newline()
			} else if len(operands) >= 2 && operands[len(operands)-2].num > 0 {
				out.WriteByte(' ')
			}
		case "Tm":
			if len(operands) >= 6 {
				y := operands[len(operands)-1].num
				if lastY != nil && *lastY != y {
					newline()
				}
				lastY = &y
			}
		case "BT":
			lastY = nil
		case "ET":
			newline()
		case "ID":
			s.skipInlineImage()
		}
		operands = operands[:0]
		array = array[:0]
	}

	return clean(out.String()), nil
}

// clean collapses runs of spaces on each line and drops blank lines.
func clean(text string) string {
	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// scanner tokenises a PDF content stream.
type scanner struct {
	data []byte
	pos  int
}

func isWhitespace(c byte) bool {
	switch c {
	case ' ', '\t', '\r', '\n', '\f', 0:
		return true
	}
	return false
}

func isDelimiter(c byte) bool {
	switch c {
	case '(', ')', '<', '>', '[', ']', '{', '}', '/', '%':
		return true
	}
	return false
}

func (s *scanner) next() (token, bool, error) {
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		switch {
		case isWhitespace(c):
			s.pos++
		case c == '%':
			for s.pos < len(s.data) && s.data[s.pos] != '\n' && s.data[s.pos] != '\r' {
				s.pos++
			}
		case c == '(':
			str, err := s.literal()
			return token{kind: tokString, text: str}, true, err
		case c == '<':
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == '<' {
				s.pos += 2
				return token{kind: tokOther, text: "<<"}, true, nil
			}
			str, err := s.hex()
			return token{kind: tokString, text: str}, true, err
		case c == '>':
			s.pos++
			if s.pos < len(s.data) && s.data[s.pos] == '>' {
				s.pos++
			}
			return token{kind: tokOther, text: ">>"}, true, nil
		case c == '[':
			s.pos++
			return token{kind: tokArrayStart}, true, nil
		case c == ']':
			s.pos++
			return token{kind: tokArrayEnd}, true, nil
		case c == '/':
			start := s.pos
			s.pos++
			s.regular()
			return token{kind: tokOther, text: string(s.data[start:s.pos])}, true, nil
		case c == '{' || c == '}' || c == ')':
			s.pos++
		default:
			start := s.pos
			s.regular()
			word := string(s.data[start:s.pos])
			if n, err := strconv.ParseFloat(word, 64); err == nil {
				return token{kind: tokNumber, text: word, num: n}, true, nil
			}
			return token{kind: tokOperator, text: word}, true, nil
		}
	}
	return token{}, false, nil
}

// regular advances over a run of regular characters.
func (s *scanner) regular() {
	for s.pos < len(s.data) && !isWhitespace(s.data[s.pos]) && !isDelimiter(s.data[s.pos]) {
		s.pos++
	}
}

// literal reads a (string) with nesting and escapes.
//
//nolint:gocyclo // escape table
func (s *scanner) literal() (string, error) {
	s.pos++ // (
	var buf []byte
	depth := 1
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		switch c {
		case '(':
			depth++
			buf = append(buf, c)
		case ')':
			depth--
			if depth == 0 {
				return decode(buf), nil
			}
			buf = append(buf, c)
		case '\\':
			if s.pos >= len(s.data) {
				return decode(buf), errUnterminated
			}
			e := s.data[s.pos]
			s.pos++
			switch e {
			case 'n':
				buf = append(buf, '\n')
			case 'r':
				buf = append(buf, '\r')
			case 't':
				buf = append(buf, '\t')
			case 'b':
				buf = append(buf, '\b')
			case 'f':
				buf = append(buf, '\f')
			case '\r':
				if s.pos < len(s.data) && s.data[s.pos] == '\n' {
					s.pos++
				}
			case '\n':
			default:
				if e >= '0' && e <= '7' {
					v := int(e - '0')
					for i := 0; i < 2 && s.pos < len(s.data) && s.data[s.pos] >= '0' && s.data[s.pos] <= '7'; i++ {
						v = v*8 + int(s.data[s.pos]-'0')
						s.pos++
					}
					buf = append(buf, byte(v))
				} else {
					buf = append(buf, e)
				}
			}
		default:
			buf = append(buf, c)
		}
	}
	return decode(buf), errUnterminated
}

// hex reads a <hex string>.
func (s *scanner) hex() (string, error) {
	s.pos++ // <
	var digits []byte
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		s.pos++
		if c == '>' {
			if len(digits)%2 == 1 {
				digits = append(digits, '0')
			}
			buf := make([]byte, len(digits)/2)
			for i := range buf {
				v, _ := strconv.ParseUint(string(digits[2*i:2*i+2]), 16, 8)
				buf[i] = byte(v)
			}
			return decode(buf), nil
		}
		if isWhitespace(c) {
			continue
		}
		digits = append(digits, c)
	}
	return "", errUnterminated
}

// skipInlineImage advances past inline image data up to its EI operator.
func (s *scanner) skipInlineImage() {
	for s.pos+2 < len(s.data) {
		if isWhitespace(s.data[s.pos]) && s.data[s.pos+1] == 'E' && s.data[s.pos+2] == 'I' &&
			(s.pos+3 == len(s.data) || isWhitespace(s.data[s.pos+3])) {
			s.pos += 3
			return
		}
		s.pos++
	}
	s.pos = len(s.data)
}

// decode interprets string bytes as UTF-16BE when marked with a BOM and
// as single-byte text otherwise. Control characters are dropped.
func decode(b []byte) string {
	var runes []rune
	if len(b) >= 2 && b[0] == 0xFE && b[1] == 0xFF {
		units := make([]uint16, 0, (len(b)-2)/2)
		for i := 2; i+1 < len(b); i += 2 {
			units = append(units, uint16(b[i])<<8|uint16(b[i+1]))
		}
		runes = utf16.Decode(units)
	} else {
		runes = make([]rune, 0, len(b))
		for _, c := range b {
			runes = append(runes, rune(c))
		}
	}

	var sb strings.Builder
	for _, r := range runes {
		switch {
		case r == '\t' || r == '\n' || r == '\r':
			sb.WriteByte(' ')
		case unicode.IsControl(r):
		default:
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
