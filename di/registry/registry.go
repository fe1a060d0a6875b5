// Package registry 提供容器作用域使用的哈希索引注册表。
//
// 每个 Scope 通过原子指针发布表快照，读操作无锁，永远不会看到构建了一半的表。
// 写操作在作用域锁内进行：插入只追加条目并挂到桶链尾，
// 仅在按素数表扩容或替换值时复制条目数组。
package registry

import (
	"hash/maphash"
	"sync"
	"sync/atomic"
)

// primes 桶数组与条目数组的容量增长表
var primes = []int{
	3, 7, 11, 17, 37, 79, 163, 331, 673, 1361, 2729, 5471, 10949,
	21911, 43853, 87719, 175447, 350899, 701819, 1403641, 2807303,
}

var seed = maphash.MakeSeed()

// Entry 是作用域中的一个条目。
// Position 在条目生命周期内保持不变，替换值时不会移动。
type Entry[K comparable, V any] struct {
	Key      K
	Value    V
	Position int
}

// table 是一个已发布的快照。
//
// buckets 与 next 在同一容量内的所有快照之间共享，链表中的位置严格递增，
// 新条目总是挂在链尾。旧快照遇到超出自身长度的位置即停止，
// 因此追加对旧读者不可见，只有扩容时才复制整张表。
type table[K comparable, V any] struct {
	entries []Entry[K, V] // entries[0] 为哨兵，有效条目从 1 开始
	buckets []atomic.Int32
	next    []atomic.Int32
	version uint64
}

func newTable[K comparable, V any](size int, entries []Entry[K, V], version uint64) *table[K, V] {
	t := &table[K, V]{
		entries: make([]Entry[K, V], len(entries), size+1),
		buckets: make([]atomic.Int32, size),
		next:    make([]atomic.Int32, size+1),
		version: version,
	}
	copy(t.entries, entries)
	for pos := 1; pos < len(t.entries); pos++ {
		t.link(pos)
	}
	return t
}

func (t *table[K, V]) bucket(key K) int {
	return int(maphash.Comparable(seed, key) % uint64(len(t.buckets)))
}

// find 返回 key 的位置，不存在时返回 0
func (t *table[K, V]) find(key K) int {
	n := len(t.entries)
	for pos := int(t.buckets[t.bucket(key)].Load()); pos > 0 && pos < n; pos = int(t.next[pos].Load()) {
		if t.entries[pos].Key == key {
			return pos
		}
	}
	return 0
}

// link 将 pos 挂到所在桶的链尾，只由持有作用域锁的写者调用
func (t *table[K, V]) link(pos int) {
	head := &t.buckets[t.bucket(t.entries[pos].Key)]
	tail := int(head.Load())
	if tail == 0 {
		head.Store(int32(pos))
		return
	}
	for {
		n := int(t.next[tail].Load())
		if n == 0 {
			break
		}
		tail = n
	}
	t.next[tail].Store(int32(pos))
}

func (t *table[K, V]) lookup(key K) (V, bool) {
	if pos := t.find(key); pos > 0 {
		return t.entries[pos].Value, true
	}
	var zero V
	return zero, false
}

// Scope 是单个容器的注册表，并通过 Ancestry 链接到所有祖先作用域。
type Scope[K comparable, V any] struct {
	mu         sync.Mutex
	current    atomic.Pointer[table[K, V]]
	primeIndex int

	parent   *Scope[K, V]
	ancestry []*Scope[K, V]
}

// New 创建根作用域
func New[K comparable, V any]() *Scope[K, V] {
	return newScope[K, V](nil)
}

func newScope[K comparable, V any](parent *Scope[K, V]) *Scope[K, V] {
	s := &Scope[K, V]{parent: parent}

	// Ancestry[0] 为自身，之后依次为父级直到根
	if parent == nil {
		s.ancestry = []*Scope[K, V]{s}
	} else {
		s.ancestry = make([]*Scope[K, V], 0, len(parent.ancestry)+1)
		s.ancestry = append(s.ancestry, s)
		s.ancestry = append(s.ancestry, parent.ancestry...)
	}

	s.current.Store(newTable[K, V](primes[0], make([]Entry[K, V], 1), 0))
	return s
}

// CreateChildScope 创建子作用域。子作用域的注册只影响自身及其后代。
func (s *Scope[K, V]) CreateChildScope() *Scope[K, V] {
	return newScope[K, V](s)
}

// Parent 返回父作用域，根作用域返回 nil
func (s *Scope[K, V]) Parent() *Scope[K, V] {
	return s.parent
}

// Ancestry 返回自身及所有祖先作用域，调用方不得修改返回的切片
func (s *Scope[K, V]) Ancestry() []*Scope[K, V] {
	return s.ancestry
}

// Version 返回结构变更计数，每次插入或替换都会递增
func (s *Scope[K, V]) Version() uint64 {
	return s.current.Load().version
}

// Len 返回有效条目数
func (s *Scope[K, V]) Len() int {
	return len(s.current.Load().entries) - 1
}

// Get 仅在当前作用域中查找
func (s *Scope[K, V]) Get(key K) (V, bool) {
	return s.current.Load().lookup(key)
}

// Contains 判断当前作用域是否包含 key
func (s *Scope[K, V]) Contains(key K) bool {
	return s.current.Load().find(key) > 0
}

// At 按位置读取条目，位置无效时返回 false
func (s *Scope[K, V]) At(position int) (Entry[K, V], bool) {
	t := s.current.Load()
	if position <= 0 || position >= len(t.entries) {
		return Entry[K, V]{}, false
	}
	return t.entries[position], true
}

// Entries 返回按注册顺序排列的条目快照，调用方不得修改
func (s *Scope[K, V]) Entries() []Entry[K, V] {
	return s.current.Load().entries[1:]
}

// Snapshot 返回条目快照及其对应的版本号
func (s *Scope[K, V]) Snapshot() ([]Entry[K, V], uint64) {
	t := s.current.Load()
	return t.entries[1:], t.version
}

// Add 插入或替换 key 对应的值。
// 如果 key 已存在则原地替换并返回旧值，不会产生重复条目。
func (s *Scope[K, V]) Add(key K, value V) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()

	if pos := cur.find(key); pos > 0 {
		old := cur.entries[pos].Value
		s.replace(cur, pos, value)
		return old, true
	}

	s.insert(cur, key, value)
	var zero V
	return zero, false
}

// Update 在写锁内读取 key 的当前值并交给 fn 决定是否写入，返回最终生效的值。
// fn 返回 false 时保持原值。
func (s *Scope[K, V]) Update(key K, fn func(cur V, ok bool) (V, bool)) V {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	pos := cur.find(key)

	var old V
	if pos > 0 {
		old = cur.entries[pos].Value
	}
	value, write := fn(old, pos > 0)
	if !write {
		return old
	}
	if pos > 0 {
		s.replace(cur, pos, value)
	} else {
		s.insert(cur, key, value)
	}
	return value
}

// GetOrAdd 仅在 key 不存在时插入 create 的结果，返回最终生效的值
func (s *Scope[K, V]) GetOrAdd(key K, create func() V) V {
	if v, ok := s.Get(key); ok {
		return v
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cur := s.current.Load()
	if v, ok := cur.lookup(key); ok {
		return v
	}

	value := create()
	s.insert(cur, key, value)
	return value
}

// replace 必须在持有 s.mu 时调用。
// 已发布的快照可能正在被读取，替换时复制条目数组，链接不变
func (s *Scope[K, V]) replace(cur *table[K, V], pos int, value V) {
	entries := make([]Entry[K, V], len(cur.entries), cap(cur.entries))
	copy(entries, cur.entries)
	entries[pos].Value = value

	s.current.Store(&table[K, V]{
		entries: entries,
		buckets: cur.buckets,
		next:    cur.next,
		version: cur.version + 1,
	})
}

// insert 必须在持有 s.mu 时调用
func (s *Scope[K, V]) insert(cur *table[K, V], key K, value V) {
	if len(cur.entries) == cap(cur.entries) {
		cur = s.grow(cur)
	}

	// 写入旧快照长度之外的槽位，随后才发布链接
	pos := len(cur.entries)
	next := &table[K, V]{
		entries: append(cur.entries, Entry[K, V]{Key: key, Value: value, Position: pos}),
		buckets: cur.buckets,
		next:    cur.next,
		version: cur.version + 1,
	}
	next.link(pos)
	s.current.Store(next)
}

// grow 按素数表扩容并重建链接，返回的表尚未发布
func (s *Scope[K, V]) grow(cur *table[K, V]) *table[K, V] {
	want := 2 * (len(cur.entries) - 1)
	for s.primeIndex < len(primes)-1 && primes[s.primeIndex] < want {
		s.primeIndex++
	}
	return newTable(max(primes[s.primeIndex], want), cur.entries, cur.version)
}
