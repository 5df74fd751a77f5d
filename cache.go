package huff

import (
	lru "github.com/hashicorp/golang-lru/v2"
)

// treeCache keeps recently built trees, keyed by the digest of their
// frequency table. Cached trees are never rebuilt in place.
type treeCache struct {
	trees *lru.Cache[uint64, *HuffTree]
}

func newTreeCache(size int) (*treeCache, error) {
	c, err := lru.New[uint64, *HuffTree](size)
	if err != nil {
		return nil, err
	}
	return &treeCache{trees: c}, nil
}

// get returns a cached tree built from exactly freq.
func (c *treeCache) get(freq *FrequencyTable) (*HuffTree, bool) {
	t, ok := c.trees.Get(freq.Digest())
	if !ok || t.freq != *freq {
		return nil, false
	}
	return t, true
}

func (c *treeCache) add(t *HuffTree) {
	c.trees.Add(t.freq.Digest(), t)
}

func (c *treeCache) len() int {
	return c.trees.Len()
}
