package masking

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"ledgerd/internal/domain"
	"ledgerd/internal/infra/canon"
)

// RedactionMarker replaces string leaves that the policy does not disclose.
const RedactionMarker = "***"

// saltedTokenLength is the display length of salted context tokens.
const saltedTokenLength = 16

// contextField is the subtree whose values are tokenized when the policy
// carries a salt.
const contextField = "context"

// Report carries machine-readable masking outcomes alongside the masked
// record. An unmatched path is not an error: receipts ingested before a
// policy's fields existed still rehydrate.
type Report struct {
	UnmatchedPaths []string
}

// Mask produces the audience-scoped view of a canonical record.
//
// With a non-empty allowlist the working copy starts fully masked and only
// allowlisted paths are copied back from the original; anything not allowed
// stays hidden. Denylist paths are masked afterwards regardless, so deny wins
// over allow for the same path. A salt tokenizes every leaf under the
// top-level context subtree, preserving within-tenant linkability without
// revealing raw values.
//
// The result is a pure function of (record, policy): identical inputs yield
// byte-identical masked output.
func Mask(record canon.Node, policy domain.AnchorPolicy) (canon.Node, Report) {
	report := Report{}

	working := record.Clone()
	if len(policy.Allowlist) > 0 || policy.DenyAll {
		working = maskAll(record)
		for _, path := range policy.Allowlist {
			segments := splitPath(path)
			if len(segments) == 0 {
				continue
			}
			original, ok := lookup(record, segments)
			if !ok {
				report.UnmatchedPaths = append(report.UnmatchedPaths, path)
				continue
			}
			setPath(&working, segments, original.Clone())
		}
	}

	for _, path := range policy.Denylist {
		segments := splitPath(path)
		if len(segments) == 0 {
			continue
		}
		original, ok := lookup(working, segments)
		if !ok {
			report.UnmatchedPaths = append(report.UnmatchedPaths, path)
			continue
		}
		setPath(&working, segments, maskAll(original))
	}

	if policy.Salt != "" {
		if contextNode, ok := record.Fields[contextField]; ok && record.Kind == canon.KindObject {
			if _, present := working.Fields[contextField]; present {
				working.Fields[contextField] = saltSubtree(contextNode, policy.Salt)
			}
		}
	}

	return working, report
}

// maskAll replaces every leaf with a type-preserving placeholder: numbers
// become 0, strings become the redaction marker, booleans become false, null
// stays null; arrays keep their length and objects their keys.
func maskAll(node canon.Node) canon.Node {
	switch node.Kind {
	case canon.KindNull:
		return canon.Null()
	case canon.KindBool:
		return canon.Bool(false)
	case canon.KindNumber:
		return canon.Number(0)
	case canon.KindString:
		return canon.String(RedactionMarker)
	case canon.KindArray:
		items := make([]canon.Node, len(node.Items))
		for i, item := range node.Items {
			items[i] = maskAll(item)
		}
		return canon.Node{Kind: canon.KindArray, Items: items}
	case canon.KindObject:
		fields := make(map[string]canon.Node, len(node.Fields))
		for key, field := range node.Fields {
			fields[key] = maskAll(field)
		}
		return canon.Object(fields)
	default:
		return canon.Null()
	}
}

// saltSubtree rewrites every leaf of the original context subtree into a
// deterministic salted token.
func saltSubtree(node canon.Node, salt string) canon.Node {
	switch node.Kind {
	case canon.KindArray:
		items := make([]canon.Node, len(node.Items))
		for i, item := range node.Items {
			items[i] = saltSubtree(item, salt)
		}
		return canon.Node{Kind: canon.KindArray, Items: items}
	case canon.KindObject:
		fields := make(map[string]canon.Node, len(node.Fields))
		for key, field := range node.Fields {
			fields[key] = saltSubtree(field, salt)
		}
		return canon.Object(fields)
	case canon.KindNull:
		return canon.Null()
	default:
		return canon.String(SaltedToken(salt, leafString(node)))
	}
}

// SaltedToken is hex(SHA-256(salt || value)) truncated to a fixed display
// length.
func SaltedToken(salt, value string) string {
	hasher := sha256.New()
	hasher.Write([]byte(salt))
	hasher.Write([]byte(value))
	sum := hasher.Sum(nil)
	return hex.EncodeToString(sum)[:saltedTokenLength]
}

func leafString(node canon.Node) string {
	switch node.Kind {
	case canon.KindString:
		return node.Str
	case canon.KindBool:
		if node.Bool {
			return "true"
		}
		return "false"
	case canon.KindNumber:
		return strconv.FormatFloat(node.Number, 'g', -1, 64)
	default:
		return ""
	}
}

func splitPath(path string) []string {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, ".")
}

// lookup resolves a dot path against a node. Numeric segments index arrays.
func lookup(node canon.Node, segments []string) (canon.Node, bool) {
	current := node
	for _, segment := range segments {
		switch current.Kind {
		case canon.KindObject:
			next, ok := current.Fields[segment]
			if !ok {
				return canon.Node{}, false
			}
			current = next
		case canon.KindArray:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(current.Items) {
				return canon.Node{}, false
			}
			current = current.Items[index]
		default:
			return canon.Node{}, false
		}
	}
	return current, true
}

// setPath overwrites the node at a dot path. Missing intermediate nodes make
// the set a no-op; the caller reports the unmatched path.
func setPath(node *canon.Node, segments []string, value canon.Node) bool {
	if len(segments) == 0 {
		*node = value
		return true
	}
	segment, rest := segments[0], segments[1:]
	switch node.Kind {
	case canon.KindObject:
		child, ok := node.Fields[segment]
		if !ok {
			return false
		}
		if len(rest) == 0 {
			node.Fields[segment] = value
			return true
		}
		if setPath(&child, rest, value) {
			node.Fields[segment] = child
			return true
		}
		return false
	case canon.KindArray:
		index, err := strconv.Atoi(segment)
		if err != nil || index < 0 || index >= len(node.Items) {
			return false
		}
		if len(rest) == 0 {
			node.Items[index] = value
			return true
		}
		return setPath(&node.Items[index], rest, value)
	default:
		return false
	}
}
