// Package cache holds in-process lookup accelerators for short URLs.
package cache

import (
	"sync"

	"github.com/bits-and-blooms/bloom/v3"
)

// BloomFilter answers "definitely unknown" for short URLs that were never created.
// Deletes are not reflected: a removed short URL keeps testing positive.
type BloomFilter struct {
	filter *bloom.BloomFilter
	mu     sync.RWMutex
}

// NewBloomFilter sizes the filter for expectedItems at the given false positive rate (0.01 is 1%).
func NewBloomFilter(expectedItems uint, falsePositiveRate float64) *BloomFilter {
	return &BloomFilter{
		filter: bloom.NewWithEstimates(expectedItems, falsePositiveRate),
	}
}

func (b *BloomFilter) Add(shortURL string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.filter.AddString(shortURL)
}

// Seed adds all given short URLs under one lock.
func (b *BloomFilter) Seed(shortURLs []string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range shortURLs {
		b.filter.AddString(s)
	}
}

// MightExist returns false only when shortURL was never added.
func (b *BloomFilter) MightExist(shortURL string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.TestString(shortURL)
}

// Count estimates the number of added items.
func (b *BloomFilter) Count() uint32 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.filter.ApproximatedSize()
}
