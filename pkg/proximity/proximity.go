// Package proximity maintains, for all players within a single room, an
// assignment of each player to a proximity group: two players share a group
// iff they are transitively within a fixed radius of one another. Movement
// triggers an incremental recomputation and yields the set of players whose
// group changed, so the dispatcher can notify only those players.
//
// Grounded on the reciprocal-proximity bookkeeping of a metaverse "space"
// hub (per-pair adjacency, diffed on every move) generalized here to a
// proper union-find so group membership is transitive rather than just
// pairwise.
package proximity

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// None is the groupId reported for a player with no current peers.
const None = "none"

// Position is a player's location within a room.
type Position struct {
	X float64
	Y float64
}

// Index maintains proximity groups for the players of one room. It is safe
// for concurrent use.
type Index struct {
	mu        sync.Mutex
	radius2   float64
	positions map[string]Position
	adjacency map[string]map[string]bool
	groupOf   map[string]string
}

// New creates an empty proximity Index using the given radius (in the same
// units as player coordinates). Two players are adjacent when the distance
// between them is ≤ radius.
func New(radius float64) *Index {
	return &Index{
		radius2:   radius * radius,
		positions: make(map[string]Position),
		adjacency: make(map[string]map[string]bool),
		groupOf:   make(map[string]string),
	}
}

// Insert adds a player at the given position and returns the set of
// playerIds whose groupId changed as a result (which may include the
// newcomer itself).
func (idx *Index) Insert(playerID string, x, y float64) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.positions[playerID] = Position{X: x, Y: y}
	if idx.adjacency[playerID] == nil {
		idx.adjacency[playerID] = make(map[string]bool)
	}
	idx.recomputeEdgesLocked(playerID)
	return idx.recomputeGroupsLocked()
}

// Remove deletes a player from the index and returns the set of playerIds
// whose groupId changed (the removed player itself is never in the
// returned set, since it is no longer tracked).
func (idx *Index) Remove(playerID string) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	for neighbor := range idx.adjacency[playerID] {
		delete(idx.adjacency[neighbor], playerID)
	}
	delete(idx.adjacency, playerID)
	delete(idx.positions, playerID)
	delete(idx.groupOf, playerID)

	return idx.recomputeGroupsLocked()
}

// Move updates a player's position and returns the set of playerIds whose
// groupId changed.
func (idx *Index) Move(playerID string, newX, newY float64) []string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, ok := idx.positions[playerID]; !ok {
		return nil
	}

	idx.positions[playerID] = Position{X: newX, Y: newY}
	idx.recomputeEdgesLocked(playerID)
	return idx.recomputeGroupsLocked()
}

// GroupOf returns the current groupId for playerID, or None if the player
// is absent or has no peers.
func (idx *Index) GroupOf(playerID string) string {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if g, ok := idx.groupOf[playerID]; ok {
		return g
	}
	return None
}

// Len returns the number of players currently tracked by this index.
func (idx *Index) Len() int {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return len(idx.positions)
}

// recomputeEdgesLocked recomputes the adjacency of playerID against every
// other tracked player. Called with idx.mu held.
func (idx *Index) recomputeEdgesLocked(playerID string) {
	pos := idx.positions[playerID]

	for other, opos := range idx.positions {
		if other == playerID {
			continue
		}
		dx := pos.X - opos.X
		dy := pos.Y - opos.Y
		within := dx*dx+dy*dy <= idx.radius2

		if idx.adjacency[other] == nil {
			idx.adjacency[other] = make(map[string]bool)
		}

		if within {
			idx.adjacency[playerID][other] = true
			idx.adjacency[other][playerID] = true
		} else {
			delete(idx.adjacency[playerID], other)
			delete(idx.adjacency[other], playerID)
		}
	}
}

// recomputeGroupsLocked runs union-find over the current adjacency graph,
// assigns the lex-smallest member of each component of size ≥ 2 as its
// representative groupId, diffs against the prior assignment, and returns
// the sorted set of playerIds whose groupId changed. Called with idx.mu held.
func (idx *Index) recomputeGroupsLocked() []string {
	uf := newUnionFind()
	for id := range idx.positions {
		uf.add(id)
	}
	for id, neighbors := range idx.adjacency {
		for n := range neighbors {
			uf.union(id, n)
		}
	}

	components := make(map[string][]string)
	for id := range idx.positions {
		root := uf.find(id)
		components[root] = append(components[root], id)
	}

	newGroups := make(map[string]string, len(idx.positions))
	for _, members := range components {
		if len(members) < 2 {
			for _, id := range members {
				newGroups[id] = None
			}
			continue
		}
		rep := lexSmallest(members)
		for _, id := range members {
			newGroups[id] = rep
		}
	}

	var changed []string
	for id, newGroup := range newGroups {
		if idx.groupOf[id] != newGroup {
			changed = append(changed, id)
		}
	}
	idx.groupOf = newGroups

	sort.Strings(changed)

	logrus.WithFields(logrus.Fields{
		"function":    "recomputeGroupsLocked",
		"playerCount": len(idx.positions),
		"changed":     len(changed),
	}).Debug("proximity groups recomputed")

	return changed
}

func lexSmallest(ids []string) string {
	smallest := ids[0]
	for _, id := range ids[1:] {
		if id < smallest {
			smallest = id
		}
	}
	return smallest
}

// unionFind is a small disjoint-set structure over string keys with path
// compression and union by rank.
type unionFind struct {
	parent map[string]string
	rank   map[string]int
}

func newUnionFind() *unionFind {
	return &unionFind{
		parent: make(map[string]string),
		rank:   make(map[string]int),
	}
}

func (u *unionFind) add(id string) {
	if _, ok := u.parent[id]; !ok {
		u.parent[id] = id
		u.rank[id] = 0
	}
}

func (u *unionFind) find(id string) string {
	root := id
	for u.parent[root] != root {
		root = u.parent[root]
	}
	for u.parent[id] != root {
		next := u.parent[id]
		u.parent[id] = root
		id = next
	}
	return root
}

func (u *unionFind) union(a, b string) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
