package cache

import "time"

// ============================================================
// LRU 分片内缓存（双向链表实现 O(1) 操作, 由所属分片加锁）
// ============================================================

type lruList struct {
	capacity int // 0 表示不限容量
	items    map[string]*lruNode
	head     *lruNode // 最近使用
	tail     *lruNode // 最久未使用
}

type lruNode struct {
	entry *Entry
	prev  *lruNode
	next  *lruNode
}

func newLRUList(capacity int) *lruList {
	return &lruList{
		capacity: capacity,
		items:    make(map[string]*lruNode),
	}
}

// get 返回未过期的条目并将其移到头部; 过期条目被惰性删除
func (l *lruList) get(key string, now time.Time) *Entry {
	node, ok := l.items[key]
	if !ok {
		return nil
	}
	if node.entry.expired(now) {
		l.removeNode(node)
		delete(l.items, key)
		return nil
	}
	l.moveToHead(node)
	return node.entry
}

// add 插入或替换条目, 返回因容量被淘汰的条目数
func (l *lruList) add(entry *Entry) int {
	if node, ok := l.items[entry.Fingerprint]; ok {
		node.entry = entry
		l.moveToHead(node)
		return 0
	}

	evicted := 0
	for l.capacity > 0 && len(l.items) >= l.capacity {
		l.evictTail()
		evicted++
	}

	node := &lruNode{entry: entry}
	l.items[entry.Fingerprint] = node
	l.addToHead(node)
	return evicted
}

func (l *lruList) remove(key string) bool {
	node, ok := l.items[key]
	if !ok {
		return false
	}
	l.removeNode(node)
	delete(l.items, key)
	return true
}

func (l *lruList) clear() {
	l.items = make(map[string]*lruNode)
	l.head = nil
	l.tail = nil
}

func (l *lruList) len() int {
	return len(l.items)
}

// addToHead 添加节点到头部 O(1)
func (l *lruList) addToHead(node *lruNode) {
	node.prev = nil
	node.next = l.head
	if l.head != nil {
		l.head.prev = node
	}
	l.head = node
	if l.tail == nil {
		l.tail = node
	}
}

// removeNode 从链表中移除节点 O(1)
func (l *lruList) removeNode(node *lruNode) {
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
	node.prev, node.next = nil, nil
}

// moveToHead 移动节点到头部 O(1)
func (l *lruList) moveToHead(node *lruNode) {
	if node == l.head {
		return
	}
	l.removeNode(node)
	l.addToHead(node)
}

// evictTail 淘汰尾部节点 O(1)
func (l *lruList) evictTail() {
	if l.tail == nil {
		return
	}
	delete(l.items, l.tail.entry.Fingerprint)
	l.removeNode(l.tail)
}
