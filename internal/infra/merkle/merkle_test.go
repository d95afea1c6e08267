package merkle

import (
	"bytes"
	"crypto/sha256"
	"testing"
)

func leafHashes(values ...string) [][]byte {
	leaves := make([][]byte, 0, len(values))
	for _, v := range values {
		sum := sha256.Sum256([]byte(v))
		leaves = append(leaves, sum[:])
	}
	return leaves
}

func TestRoot_SingleLeaf(t *testing.T) {
	leaves := leafHashes("a")
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	if !bytes.Equal(root, leaves[0]) {
		t.Fatal("single-leaf root must equal the leaf hash")
	}
}

func TestRoot_OddLeafDuplication(t *testing.T) {
	leaves := leafHashes("a", "b", "c")
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}

	// Recompute by hand: level one pairs (a,b) and (c,c); the root pairs those.
	ab := NodeHash(leaves[0], leaves[1])
	cc := NodeHash(leaves[2], leaves[2])
	expected := NodeHash(ab, cc)
	if !bytes.Equal(root, expected) {
		t.Fatal("root does not follow odd-node duplication rule")
	}
}

func TestRoot_Idempotent(t *testing.T) {
	leaves := leafHashes("a", "b", "c", "d", "e")
	first, err := Root(leaves)
	if err != nil {
		t.Fatalf("first root: %v", err)
	}
	second, err := Root(leaves)
	if err != nil {
		t.Fatalf("second root: %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Fatal("recomputing the root over the same ordered leaves changed the value")
	}
}

func TestRoot_OrderSensitive(t *testing.T) {
	forward, err := Root(leafHashes("a", "b", "c", "d"))
	if err != nil {
		t.Fatalf("forward root: %v", err)
	}
	reversed, err := Root(leafHashes("d", "c", "b", "a"))
	if err != nil {
		t.Fatalf("reversed root: %v", err)
	}
	if bytes.Equal(forward, reversed) {
		t.Fatal("root must depend on leaf order")
	}
}

func TestRoot_RejectsBadInput(t *testing.T) {
	if _, err := Root(nil); err != ErrEmptyTree {
		t.Fatalf("expected ErrEmptyTree, got %v", err)
	}
	if _, err := Root([][]byte{[]byte("short")}); err == nil {
		t.Fatal("expected invalid hash length error")
	}
}

func TestInclusionProof_AllLeavesAllSizes(t *testing.T) {
	values := []string{"a", "b", "c", "d", "e", "f", "g"}
	for size := 1; size <= len(values); size++ {
		leaves := leafHashes(values[:size]...)
		root, err := Root(leaves)
		if err != nil {
			t.Fatalf("size %d: root: %v", size, err)
		}
		for idx := 0; idx < size; idx++ {
			path, err := InclusionProof(leaves, idx)
			if err != nil {
				t.Fatalf("size %d leaf %d: proof: %v", size, idx, err)
			}
			ok, err := VerifyInclusionProof(leaves[idx], idx, size, path, root)
			if err != nil {
				t.Fatalf("size %d leaf %d: verify: %v", size, idx, err)
			}
			if !ok {
				t.Fatalf("size %d leaf %d: proof did not verify", size, idx)
			}
		}
	}
}

func TestVerifyInclusionProof_RejectsWrongLeaf(t *testing.T) {
	leaves := leafHashes("a", "b", "c")
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := InclusionProof(leaves, 1)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	wrong := sha256.Sum256([]byte("tampered"))
	ok, err := VerifyInclusionProof(wrong[:], 1, len(leaves), path, root)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered leaf verified against the root")
	}
}

func TestVerifyInclusionProof_RejectsWrongPathLength(t *testing.T) {
	leaves := leafHashes("a", "b", "c", "d")
	root, err := Root(leaves)
	if err != nil {
		t.Fatalf("root: %v", err)
	}
	path, err := InclusionProof(leaves, 0)
	if err != nil {
		t.Fatalf("proof: %v", err)
	}
	if _, err := VerifyInclusionProof(leaves[0], 0, len(leaves), path[:1], root); err != ErrInvalidSize {
		t.Fatalf("expected ErrInvalidSize for short path, got %v", err)
	}
	extra := append(append([][]byte{}, path...), path[0])
	if _, err := VerifyInclusionProof(leaves[0], 0, len(leaves), extra, root); err != ErrInvalidSize {
		t.Fatalf("expected ErrInvalidSize for long path, got %v", err)
	}
}
