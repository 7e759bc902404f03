// Package placement maps logical instance names onto endpoints with a
// consistent hash ring (crc32 with virtual nodes).
//
// Placement is pure: a ring built from the same members places a given name
// on the same member every time, which keeps instance resolution stable for a
// deployment. Adding a member only moves the names that land on its slice of
// the ring.
package placement
