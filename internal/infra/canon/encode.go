package canon

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
)

// Encode renders a node as byte-stable JSON: object keys sorted, no
// incidental whitespace, shortest-round-trip number formatting.
func Encode(node Node) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := writeCanonical(buf, node); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Hash is the SHA-256 hex digest of a node's canonical bytes.
func Hash(node Node) (string, error) {
	encoded, err := Encode(node)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

// CanonicalizeJSON re-encodes arbitrary JSON bytes into canonical form.
func CanonicalizeJSON(input []byte) ([]byte, error) {
	node, err := Decode(input)
	if err != nil {
		return nil, err
	}
	return Encode(node)
}

// CanonicalizeAny canonicalizes a Go value via its JSON representation.
func CanonicalizeAny(value any) ([]byte, error) {
	node, err := FromAny(value)
	if err != nil {
		return nil, err
	}
	return Encode(node)
}

func writeCanonical(buf *bytes.Buffer, node Node) error {
	switch node.Kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if node.Bool {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindString:
		writeString(buf, node.Str)
	case KindNumber:
		num, err := canonicalizeFloat(node.Number)
		if err != nil {
			return err
		}
		buf.WriteString(num)
	case KindArray:
		buf.WriteByte('[')
		for i, item := range node.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindObject:
		keys := make([]string, 0, len(node.Fields))
		for key := range node.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, key := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeString(buf, key)
			buf.WriteByte(':')
			if err := writeCanonical(buf, node.Fields[key]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unknown node kind %d", node.Kind)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"', '\\':
			buf.WriteByte('\\')
			buf.WriteRune(r)
		case '\b':
			buf.WriteString(`\b`)
		case '\f':
			buf.WriteString(`\f`)
		case '\n':
			buf.WriteString(`\n`)
		case '\r':
			buf.WriteString(`\r`)
		case '\t':
			buf.WriteString(`\t`)
		default:
			if r < 0x20 {
				buf.WriteString(`\u00`)
				buf.WriteByte(hexLower[r>>4])
				buf.WriteByte(hexLower[r&0x0f])
			} else {
				buf.WriteRune(r)
			}
		}
	}
	buf.WriteByte('"')
}

var hexLower = []byte("0123456789abcdef")

func canonicalizeFloat(f float64) (string, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return "", errors.New("non-finite number")
	}
	if f == 0 {
		return "0", nil
	}

	sign := ""
	if f < 0 {
		sign = "-"
		f = math.Abs(f)
	}

	mantissa, exp, err := splitScientific(f)
	if err != nil {
		return "", err
	}

	digits := strings.ReplaceAll(mantissa, ".", "")

	if exp <= -7 || exp >= 21 {
		if len(digits) == 1 {
			return sign + digits + "e" + strconv.Itoa(exp), nil
		}
		return sign + digits[:1] + "." + digits[1:] + "e" + strconv.Itoa(exp), nil
	}

	point := exp + 1
	if point >= len(digits) {
		return sign + digits + strings.Repeat("0", point-len(digits)), nil
	}
	if point <= 0 {
		return sign + "0." + strings.Repeat("0", -point) + digits, nil
	}
	return sign + digits[:point] + "." + digits[point:], nil
}

func splitScientific(f float64) (string, int, error) {
	s := strconv.FormatFloat(f, 'e', -1, 64)
	parts := strings.SplitN(s, "e", 2)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf("invalid float format: %q", s)
	}
	exp, err := strconv.Atoi(parts[1])
	if err != nil {
		return "", 0, fmt.Errorf("invalid float exponent: %w", err)
	}
	return parts[0], exp, nil
}
