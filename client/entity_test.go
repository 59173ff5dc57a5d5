package client

import (
	"testing"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/game"
)

func entityMsg(t *testing.T, typ vcnet.MessageType, e vcnet.EntityState) *vcnet.Message {
	t.Helper()

	data, err := e.MarshalBinary()
	if err != nil {
		t.Fatalf("marshal entity: %v", err)
	}
	return vcnet.NewMessage(typ, data)
}

func TestEntityReplication(t *testing.T) {
	c, err := NewClient(vcnet.ClientConfig{
		Codec: vcnet.CodecConfig{Serialization: "binary"},
	}, game.NewMemoryWorld())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	c.handleEntityCreate(0, entityMsg(t, vcnet.MsgEntityCreate, vcnet.EntityState{
		ID: 7, Kind: 2, Pos: vcnet.Vec3{X: 1},
	}))

	got := c.Entities()
	if len(got) != 1 || got[0].ID != 7 || got[0].Pos.X != 1 {
		t.Fatalf("after create: %+v", got)
	}

	c.handleEntityUpdate(0, entityMsg(t, vcnet.MsgEntityUpdate, vcnet.EntityState{
		ID: 7, Kind: 2, Pos: vcnet.Vec3{X: 3},
	}))
	if got := c.Entities(); got[0].Pos.X != 3 {
		t.Fatalf("update not applied: %+v", got[0])
	}

	// Updates for entities never announced must not spawn them.
	c.handleEntityUpdate(0, entityMsg(t, vcnet.MsgEntityUpdate, vcnet.EntityState{
		ID: 99, Pos: vcnet.Vec3{X: 5},
	}))
	if got := c.Entities(); len(got) != 1 {
		t.Fatalf("unannounced update spawned entity: %+v", got)
	}

	destroy, err := (&vcnet.EntityDestroyData{ID: 7}).MarshalBinary()
	if err != nil {
		t.Fatalf("marshal destroy: %v", err)
	}
	c.handleEntityDestroy(0, vcnet.NewMessage(vcnet.MsgEntityDestroy, destroy))
	if got := c.Entities(); len(got) != 0 {
		t.Fatalf("destroy left entities: %+v", got)
	}

	// A reordered update arriving after the destroy stays dead.
	c.handleEntityUpdate(0, entityMsg(t, vcnet.MsgEntityUpdate, vcnet.EntityState{
		ID: 7, Pos: vcnet.Vec3{X: 9},
	}))
	if got := c.Entities(); len(got) != 0 {
		t.Fatalf("late update resurrected entity: %+v", got)
	}
}
