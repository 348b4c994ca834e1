package qna

import (
	"sort"
	"sync"
	"sync/atomic"
)

// Registry holds loaded trees. Readers get a consistent snapshot without locking;
// writers publish a fresh map.
type Registry struct {
	mu    sync.Mutex
	trees atomic.Pointer[map[string]*QuestionTree]
}

func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]*QuestionTree{}
	r.trees.Store(&empty)
	return r
}

func (r *Registry) snapshot() map[string]*QuestionTree {
	if m := r.trees.Load(); m != nil {
		return *m
	}
	return nil
}

func (r *Registry) Get(treeID string) (*QuestionTree, bool) {
	tree, ok := r.snapshot()[treeID]
	return tree, ok
}

// Put registers or replaces a single tree.
func (r *Registry) Put(tree *QuestionTree) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.snapshot()
	next := make(map[string]*QuestionTree, len(current)+1)
	for id, t := range current {
		next[id] = t
	}
	next[tree.TreeID] = tree
	r.trees.Store(&next)
}

// Replace swaps the whole registry content at once.
func (r *Registry) Replace(trees []*QuestionTree) {
	next := make(map[string]*QuestionTree, len(trees))
	for _, tree := range trees {
		next[tree.TreeID] = tree
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.trees.Store(&next)
}

// List returns the registered trees ordered by id.
func (r *Registry) List() []*QuestionTree {
	current := r.snapshot()
	trees := make([]*QuestionTree, 0, len(current))
	for _, tree := range current {
		trees = append(trees, tree)
	}
	sort.Slice(trees, func(i, j int) bool { return trees[i].TreeID < trees[j].TreeID })
	return trees
}

func (r *Registry) Len() int {
	return len(r.snapshot())
}
