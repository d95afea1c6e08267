package canon

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"

	"ledgerd/internal/domain"
)

type Kind int

const (
	KindNull Kind = iota
	KindBool
	KindNumber
	KindString
	KindArray
	KindObject
)

// Node is a canonical value tree. Two semantically equal payloads always
// decode to trees whose Encode output is byte-identical.
type Node struct {
	Kind   Kind
	Bool   bool
	Number float64
	Str    string
	Items  []Node
	Fields map[string]Node
}

func Null() Node {
	return Node{Kind: KindNull}
}

func Bool(v bool) Node {
	return Node{Kind: KindBool, Bool: v}
}

func Number(v float64) Node {
	return Node{Kind: KindNumber, Number: v}
}

func String(v string) Node {
	return Node{Kind: KindString, Str: v}
}

func Array(items ...Node) Node {
	return Node{Kind: KindArray, Items: items}
}

func Object(fields map[string]Node) Node {
	if fields == nil {
		fields = map[string]Node{}
	}
	return Node{Kind: KindObject, Fields: fields}
}

// Decode parses JSON bytes into a Node. Trailing data and numbers outside the
// float64 range are rejected with ErrMalformedPayload.
func Decode(input []byte) (Node, error) {
	dec := json.NewDecoder(bytes.NewReader(input))
	dec.UseNumber()

	var value any
	if err := dec.Decode(&value); err != nil {
		return Node{}, fmt.Errorf("%w: invalid JSON: %v", domain.ErrMalformedPayload, err)
	}
	if err := ensureEOF(dec); err != nil {
		return Node{}, err
	}
	return FromAny(value)
}

// FromAny converts decoded JSON values (and common Go scalars) into a Node.
func FromAny(value any) (Node, error) {
	switch v := value.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(v), nil
	case string:
		return String(v), nil
	case json.RawMessage:
		return Decode(v)
	case json.Number:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err != nil {
			return Node{}, fmt.Errorf("%w: invalid number %q", domain.ErrMalformedPayload, v.String())
		}
		return numberNode(f)
	case float64:
		return numberNode(v)
	case float32:
		return numberNode(float64(v))
	case int:
		return numberNode(float64(v))
	case int32:
		return numberNode(float64(v))
	case int64:
		return numberNode(float64(v))
	case map[string]any:
		fields := make(map[string]Node, len(v))
		for key, item := range v {
			node, err := FromAny(item)
			if err != nil {
				return Node{}, err
			}
			fields[key] = node
		}
		return Object(fields), nil
	case []any:
		items := make([]Node, 0, len(v))
		for _, item := range v {
			node, err := FromAny(item)
			if err != nil {
				return Node{}, err
			}
			items = append(items, node)
		}
		return Node{Kind: KindArray, Items: items}, nil
	default:
		return Node{}, fmt.Errorf("%w: unsupported value type %T", domain.ErrMalformedPayload, value)
	}
}

func numberNode(f float64) (Node, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Node{}, fmt.Errorf("%w: non-finite number", domain.ErrMalformedPayload)
	}
	return Number(f), nil
}

// Clone deep-copies a node so callers can rewrite the copy without touching
// the original.
func (n Node) Clone() Node {
	out := n
	if n.Items != nil {
		out.Items = make([]Node, len(n.Items))
		for i, item := range n.Items {
			out.Items[i] = item.Clone()
		}
	}
	if n.Fields != nil {
		out.Fields = make(map[string]Node, len(n.Fields))
		for key, field := range n.Fields {
			out.Fields[key] = field.Clone()
		}
	}
	return out
}

func ensureEOF(dec *json.Decoder) error {
	var extra any
	if err := dec.Decode(&extra); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: invalid JSON: %v", domain.ErrMalformedPayload, err)
	}
	return fmt.Errorf("%w: trailing data", domain.ErrMalformedPayload)
}
