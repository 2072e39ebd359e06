package core

import (
	"crypto/sha256"
	"encoding/base64"
	"sort"
	"sync"
)

func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// HashSet collects inline script digests from concurrent tasks.
type HashSet struct {
	mu     sync.Mutex
	hashes map[string]struct{}
}

func NewHashSet() *HashSet {
	return &HashSet{hashes: make(map[string]struct{})}
}

func (s *HashSet) Add(hash string) {
	s.mu.Lock()
	s.hashes[hash] = struct{}{}
	s.mu.Unlock()
}

func (s *HashSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hashes)
}

func (s *HashSet) Sorted() []string {
	s.mu.Lock()
	out := make([]string, 0, len(s.hashes))
	for h := range s.hashes {
		out = append(out, h)
	}
	s.mu.Unlock()

	sort.Strings(out)
	return out
}
