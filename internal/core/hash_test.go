package core

import (
	"fmt"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestHashContent(t *testing.T) {
	// sha256("") base64
	if got := HashContent(nil); got != "47DEQpj8HBSa+/TImW+5JCeuQeRkm5NMpJWZG3hSuFU=" {
		t.Errorf("HashContent(nil) = %q", got)
	}
	if HashContent([]byte("a")) == HashContent([]byte("b")) {
		t.Error("distinct content produced the same hash")
	}
}

func TestHashSetConcurrentAdd(t *testing.T) {
	set := NewHashSet()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		g := g
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				set.Add(fmt.Sprintf("h%02d", i))
				set.Add(fmt.Sprintf("g%d-%02d", g, i))
			}
		}()
	}
	wg.Wait()

	if got, want := set.Len(), 50+8*50; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}
}

func TestHashSetSorted(t *testing.T) {
	set := NewHashSet()
	for _, h := range []string{"c", "a", "b", "a", "c"} {
		set.Add(h)
	}

	if diff := cmp.Diff([]string{"a", "b", "c"}, set.Sorted()); diff != "" {
		t.Errorf("Sorted() mismatch (-want +got):\n%s", diff)
	}
	if got := NewHashSet().Sorted(); len(got) != 0 {
		t.Errorf("empty set Sorted() = %v", got)
	}
}
