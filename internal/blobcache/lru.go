package blobcache

// lruNode is a node in a doubly-linked LRU list.
// The node stores a key for O(1) deletion from the parent map.
type lruNode struct {
	key  string
	prev *lruNode
	next *lruNode
}

// lruList is a doubly-linked list for LRU eviction.
// The list is not thread-safe; callers must handle synchronization.
//
// The head is the most recently used, tail is least recently used.
type lruList struct {
	head *lruNode
	tail *lruNode
	len  int
}

// Len returns the number of nodes in the list.
func (l *lruList) Len() int {
	return l.len
}

// PushFront adds a new node at the front (most recently used).
// Returns the created node for later access.
func (l *lruList) PushFront(key string) *lruNode {
	node := &lruNode{key: key}
	if l.head == nil {
		l.head = node
		l.tail = node
	} else {
		node.next = l.head
		l.head.prev = node
		l.head = node
	}
	l.len++
	return node
}

// MoveToFront moves an existing node to the front (most recently used).
func (l *lruList) MoveToFront(node *lruNode) {
	if node == nil || node == l.head {
		return
	}
	l.unlink(node)
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
	l.len++
}

// Remove removes a node from the list.
func (l *lruList) Remove(node *lruNode) {
	if node == nil {
		return
	}
	l.unlink(node)
}

// RemoveOldest removes and returns the key of the least recently used node.
// Returns "" and false if the list is empty.
func (l *lruList) RemoveOldest() (string, bool) {
	if l.tail == nil {
		return "", false
	}
	node := l.tail
	l.unlink(node)
	return node.key, true
}

// unlink removes a node from the list without clearing the node's pointers.
func (l *lruList) unlink(node *lruNode) {
	if node.prev != nil {
		node.prev.next = node.next
	} else {
		l.head = node.next
	}
	if node.next != nil {
		node.next.prev = node.prev
	} else {
		l.tail = node.prev
	}
	node.prev = nil
	node.next = nil
	l.len--
}
