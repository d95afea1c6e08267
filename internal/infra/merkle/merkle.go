package merkle

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"fmt"
)

const HashSize = 32

var (
	ErrEmptyTree      = errors.New("empty merkle tree")
	ErrInvalidHashLen = errors.New("invalid hash length")
	ErrInvalidIndex   = errors.New("invalid leaf index")
	ErrInvalidSize    = errors.New("invalid tree size")
)

// NodeHash is the pairwise parent hash: SHA-256 over the concatenation of the
// two child hashes.
func NodeHash(left, right []byte) []byte {
	hasher := sha256.New()
	hasher.Write(left)
	hasher.Write(right)
	return hasher.Sum(nil)
}

// Root computes the Merkle root over ordered leaf hashes. A level with odd
// cardinality duplicates its last node before pairing, recursing until one
// root remains. The leaf ordering is part of the root's identity.
func Root(leaves [][]byte) ([]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0], nil
}

// InclusionProof returns the sibling path for one leaf, bottom-up. Each entry
// is the sibling at that level; an odd tail contributes the node itself.
func InclusionProof(leaves [][]byte, leafIndex int) ([][]byte, error) {
	level, err := cloneAndValidateLeaves(leaves)
	if err != nil {
		return nil, err
	}
	if leafIndex < 0 || leafIndex >= len(level) {
		return nil, ErrInvalidIndex
	}

	path := make([][]byte, 0)
	index := leafIndex
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index
		}
		path = append(path, cloneHash(level[sibling]))
		level = nextLevel(level)
		index /= 2
	}
	return path, nil
}

// VerifyInclusionProof recomputes the root from a leaf hash and its sibling
// path and compares it with the expected root.
func VerifyInclusionProof(leafHash []byte, leafIndex int, treeSize int, path [][]byte, expectedRoot []byte) (bool, error) {
	if treeSize <= 0 {
		return false, ErrInvalidSize
	}
	if leafIndex < 0 || leafIndex >= treeSize {
		return false, ErrInvalidIndex
	}
	if err := validateHash(leafHash); err != nil {
		return false, err
	}
	if err := validateHash(expectedRoot); err != nil {
		return false, err
	}
	for _, p := range path {
		if err := validateHash(p); err != nil {
			return false, err
		}
	}

	hash := cloneHash(leafHash)
	index := leafIndex
	size := treeSize
	used := 0
	for size > 1 {
		if used >= len(path) {
			return false, ErrInvalidSize
		}
		sibling := path[used]
		used++
		if index%2 == 0 {
			hash = NodeHash(hash, sibling)
		} else {
			hash = NodeHash(sibling, hash)
		}
		index /= 2
		size = (size + 1) / 2
	}
	if used != len(path) {
		return false, ErrInvalidSize
	}
	return bytes.Equal(hash, expectedRoot), nil
}

func nextLevel(level [][]byte) [][]byte {
	if len(level)%2 == 1 {
		level = append(level, cloneHash(level[len(level)-1]))
	}
	parents := make([][]byte, 0, len(level)/2)
	for i := 0; i < len(level); i += 2 {
		parents = append(parents, NodeHash(level[i], level[i+1]))
	}
	return parents
}

func cloneAndValidateLeaves(leaves [][]byte) ([][]byte, error) {
	if len(leaves) == 0 {
		return nil, ErrEmptyTree
	}
	out := make([][]byte, len(leaves))
	for i, leaf := range leaves {
		if err := validateHash(leaf); err != nil {
			return nil, fmt.Errorf("leaf %d: %w", i, err)
		}
		out[i] = cloneHash(leaf)
	}
	return out, nil
}

func validateHash(hash []byte) error {
	if len(hash) != HashSize {
		return ErrInvalidHashLen
	}
	return nil
}

func cloneHash(hash []byte) []byte {
	if hash == nil {
		return nil
	}
	out := make([]byte, len(hash))
	copy(out, hash)
	return out
}
