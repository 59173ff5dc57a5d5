/*
Package game holds the collaborator contracts the networking core is
built against, plus a reference deterministic player simulation. The
server runs the simulation authoritatively; the client runs the same
code for prediction, so both sides must produce bit-identical results
for the same inputs.
*/
package game

import (
	"github.com/voxelcraft/vcnet"
)

// World is the server's block store. Serialize must be deterministic:
// equal contents produce equal bytes, so snapshot deltas stay small.
type World interface {
	Serialize() []byte
	ApplyDelta(delta []byte) error
	Generation() uint64
}

// EntityManager tracks the non-player entities replicated over the
// entity message stream.
type EntityManager interface {
	Active() []vcnet.EntityState
	Upsert(e vcnet.EntityState)
	Remove(id uint32)
}
