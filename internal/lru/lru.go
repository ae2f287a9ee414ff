// Package lru implements the doubly linked recency list used by the cache
// engine: most-recently-used at the head, least-recently-used at the tail,
// with O(1) move-to-front and O(1) removal given a node pointer. Nodes are
// keyed by layout.PageNo and handed back to the caller so the cache's page
// table can hold the node pointer directly instead of a secondary lookup.
package lru

import "bufferpoold/internal/layout"

// Node is a link in the recency list.
type Node struct {
	list *List
	prev *Node
	next *Node
	key  layout.PageNo
}

// Key returns the page number this node represents.
func (n *Node) Key() layout.PageNo { return n.key }

// Prev returns the next node toward the most-recently-used end, or nil if n
// is the head.
func (n *Node) Prev() *Node { return n.prev }

// List is a doubly linked list of page numbers ordered by recency.
type List struct {
	head *Node // most recently used
	tail *Node // least recently used
	len  int
}

// New constructs an empty recency list.
func New() *List {
	return &List{}
}

// Len returns the number of nodes in the list.
func (l *List) Len() int { return l.len }

// PushFront inserts key at the most-recently-used end and returns its node.
func (l *List) PushFront(key layout.PageNo) *Node {
	n := &Node{list: l, key: key, next: l.head}
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
	return n
}

// MoveToFront moves an existing node to the most-recently-used end.
func (l *List) MoveToFront(n *Node) {
	if l.head == n {
		return
	}
	l.remove(n)
	n.prev = nil
	n.next = l.head
	if l.head != nil {
		l.head.prev = n
	}
	l.head = n
	if l.tail == nil {
		l.tail = n
	}
	l.len++
}

// Back returns the least-recently-used node, or nil if the list is empty.
func (l *List) Back() *Node { return l.tail }

// Remove detaches n from the list.
func (l *List) Remove(n *Node) {
	l.remove(n)
}

// remove unlinks n from the list and clears n's prev/next links, so it is
// safe as a helper for both Remove and the reinsertion in MoveToFront.
func (l *List) remove(n *Node) {
	if n.list != l {
		return
	}
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		l.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		l.tail = n.prev
	}
	n.prev = nil
	n.next = nil
	l.len--
}
