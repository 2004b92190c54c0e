package repository

import (
	"fmt"
	"math/rand"
	"testing"
)

func checkTreap(t *testing.T, n *node) int {
	t.Helper()
	if n == nil {
		return 0
	}
	if n.left != nil {
		if n.left.prio > n.prio {
			t.Errorf("heap order violated at %s", n.id)
		}
		if !less(n.left.rating, n.left.id, n.rating, n.id) {
			t.Errorf("left child %s not ordered before %s", n.left.id, n.id)
		}
	}
	if n.right != nil {
		if n.right.prio > n.prio {
			t.Errorf("heap order violated at %s", n.id)
		}
		if !less(n.rating, n.id, n.right.rating, n.right.id) {
			t.Errorf("right child %s not ordered after %s", n.right.id, n.id)
		}
	}
	size := 1 + checkTreap(t, n.left) + checkTreap(t, n.right)
	if size != n.size {
		t.Errorf("size at %s: expected %d, got %d", n.id, size, n.size)
	}
	return size
}

func TestTreap_InsertDeleteKeepsInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ratings := make(map[string]int)
	var root *node

	for i := 0; i < 500; i++ {
		id := fmt.Sprintf("p%03d", i)
		r := 1200 + rng.Intn(600)
		ratings[id] = r
		root = insert(root, id, r, rng.Uint64())
	}
	if got := checkTreap(t, root); got != 500 {
		t.Fatalf("expected 500 nodes, got %d", got)
	}

	for i := 0; i < 500; i += 3 {
		id := fmt.Sprintf("p%03d", i)
		root = deleteNode(root, id, ratings[id])
		delete(ratings, id)
	}
	if got := checkTreap(t, root); got != len(ratings) {
		t.Fatalf("expected %d nodes, got %d", len(ratings), got)
	}

	var all []*node
	collect(root, len(ratings), &all)
	for i := 1; i < len(all); i++ {
		if !less(all[i-1].rating, all[i-1].id, all[i].rating, all[i].id) {
			t.Errorf("in-order traversal out of order at %d", i)
		}
	}
}

func TestTreap_CountAbove(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	ratings := make(map[string]int)
	var root *node
	for i := 0; i < 200; i++ {
		id := fmt.Sprintf("p%03d", i)
		r := 1400 + rng.Intn(50)
		ratings[id] = r
		root = insert(root, id, r, rng.Uint64())
	}

	for probe := 1390; probe <= 1460; probe++ {
		want := 0
		for _, r := range ratings {
			if r > probe {
				want++
			}
		}
		if got := countAbove(root, probe); got != want {
			t.Errorf("countAbove(%d): expected %d, got %d", probe, want, got)
		}
	}
}

func TestTreap_CollectLimit(t *testing.T) {
	var root *node
	for i, r := range []int{1500, 1600, 1400, 1600} {
		root = insert(root, fmt.Sprintf("p%d", i), r, uint64(i*7919))
	}

	var top []*node
	collect(root, 2, &top)
	if len(top) != 2 {
		t.Fatalf("expected 2 nodes, got %d", len(top))
	}
	if top[0].id != "p1" || top[1].id != "p3" {
		t.Errorf("expected p1, p3 got %s, %s", top[0].id, top[1].id)
	}
}
