package internal

import (
	"cmp"
	"slices"
)

// Set is a collection of unique items that remembers insertion order.
type Set[T comparable] struct {
	items map[T]struct{}
	order []T
}

// NewSet creates a set holding items, in order, without duplicates.
func NewSet[T comparable](items ...T) *Set[T] {
	s := &Set[T]{items: make(map[T]struct{}, len(items))}
	for _, item := range items {
		s.Add(item)
	}
	return s
}

// Add inserts item and reports whether it was absent.
func (s *Set[T]) Add(item T) bool {
	if _, exists := s.items[item]; exists {
		return false
	}
	s.items[item] = struct{}{}
	s.order = append(s.order, item)
	return true
}

func (s *Set[T]) Remove(item T) {
	if _, exists := s.items[item]; !exists {
		return
	}
	delete(s.items, item)
	s.order = slices.DeleteFunc(s.order, func(v T) bool { return v == item })
}

func (s *Set[T]) Contains(item T) bool {
	_, exists := s.items[item]
	return exists
}

func (s *Set[T]) Size() int {
	return len(s.items)
}

// ToSlice returns the items in insertion order.
func (s *Set[T]) ToSlice() []T {
	return slices.Clone(s.order)
}

// SortedKeys returns the keys of m in ascending order.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	keys := make([]K, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys
}

// dedupe drops repeated ids, keeping the first occurrence.
func dedupe[T comparable](items []T) []T {
	return NewSet(items...).ToSlice()
}
