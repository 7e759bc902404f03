package placement

import (
	"hash/crc32"
	"sort"
	"strconv"
)

// DefaultVirtualNodes is used when a ring is built with a non-positive count.
const DefaultVirtualNodes = 100

// Member is anything that can own a slice of the ring.
type Member interface {
	Key() string
}

// Ring is an immutable consistent hash ring. It is safe for concurrent use.
type Ring[T Member] struct {
	positions []uint32
	owners    map[uint32]T
	members   []T
}

// New builds a ring with virtualNodes points per member.
func New[T Member](members []T, virtualNodes int) *Ring[T] {
	if virtualNodes <= 0 {
		virtualNodes = DefaultVirtualNodes
	}

	r := &Ring[T]{
		positions: make([]uint32, 0, len(members)*virtualNodes),
		owners:    make(map[uint32]T, len(members)*virtualNodes),
		members:   append([]T(nil), members...),
	}

	for _, m := range members {
		for i := 0; i < virtualNodes; i++ {
			hash := crc32.ChecksumIEEE([]byte(m.Key() + "#" + strconv.Itoa(i)))
			if _, taken := r.owners[hash]; taken {
				continue
			}

			r.positions = append(r.positions, hash)
			r.owners[hash] = m
		}
	}

	sort.Slice(r.positions, func(i, j int) bool { return r.positions[i] < r.positions[j] })
	return r
}

// Locate returns the member owning name. The same ring always places the same
// name on the same member. ok is false for an empty ring.
func (r *Ring[T]) Locate(name string) (member T, ok bool) {
	if r == nil || len(r.positions) == 0 {
		return member, false
	}

	hash := crc32.ChecksumIEEE([]byte(name))
	idx := sort.Search(len(r.positions), func(i int) bool {
		return r.positions[i] >= hash
	})

	if idx == len(r.positions) {
		idx = 0
	}

	return r.owners[r.positions[idx]], true
}

// Members returns the members the ring was built from, in input order.
func (r *Ring[T]) Members() []T {
	return append([]T(nil), r.members...)
}

// Len reports the number of points on the ring.
func (r *Ring[T]) Len() int {
	return len(r.positions)
}
