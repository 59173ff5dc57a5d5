package server

import (
	"context"

	"github.com/voxelcraft/vcnet"
)

// SpawnEntity registers e and announces it to every playing peer.
// Calling it again with the same id moves the entity.
func (srv *Server) SpawnEntity(e vcnet.EntityState) {
	srv.entities.Upsert(e)

	data, _ := e.MarshalBinary()
	srv.Broadcast(vcnet.NewMessage(vcnet.MsgEntityCreate, data))
}

// UpdateEntity replaces the replicated state of a live entity. Updates
// travel unreliably; a lost one is overwritten by the next.
func (srv *Server) UpdateEntity(e vcnet.EntityState) {
	srv.entities.Upsert(e)

	data, _ := e.MarshalBinary()
	srv.Broadcast(vcnet.NewMessage(vcnet.MsgEntityUpdate, data))
}

// DestroyEntity removes an entity and announces the removal.
func (srv *Server) DestroyEntity(id uint32) {
	srv.entities.Remove(id)

	srv.Broadcast(vcnet.NewMessage(vcnet.MsgEntityDestroy, mustMarshal(&vcnet.EntityDestroyData{
		ID: id,
	})))
}

// Entities returns the live entity states in ascending id order.
func (srv *Server) Entities() []vcnet.EntityState {
	return srv.entities.Active()
}

// syncEntities replays the live entity set to a peer that just
// finished joining, so it starts from the same view as everyone else.
func (srv *Server) syncEntities(p *Peer) {
	for _, e := range srv.entities.Active() {
		data, _ := e.MarshalBinary()
		p.Send(context.Background(), vcnet.NewMessage(vcnet.MsgEntityCreate, data).To(p.ID))
	}
}
