package client

import (
	"github.com/voxelcraft/vcnet"
)

// Entities returns the replicated non-player entities in ascending id
// order.
func (c *Client) Entities() []vcnet.EntityState {
	return c.entities.Active()
}

func (c *Client) handleEntityCreate(_ vcnet.PeerID, msg *vcnet.Message) {
	var e vcnet.EntityState
	if err := e.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	c.entities.Upsert(e)
}

// handleEntityUpdate ignores entities that were never announced, since
// a reordered update must not resurrect a destroyed entity.
func (c *Client) handleEntityUpdate(_ vcnet.PeerID, msg *vcnet.Message) {
	var e vcnet.EntityState
	if err := e.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	if !c.entities.Has(e.ID) {
		return
	}
	c.entities.Upsert(e)
}

func (c *Client) handleEntityDestroy(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.EntityDestroyData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	c.entities.Remove(d.ID)
}
