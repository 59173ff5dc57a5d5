package server

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/voxelcraft/vcnet"
	"github.com/voxelcraft/vcnet/channel"
	"github.com/voxelcraft/vcnet/game"
	"github.com/voxelcraft/vcnet/proto"
	"github.com/voxelcraft/vcnet/snapshot"
	"github.com/voxelcraft/vcnet/transport"
)

// historyDepth is how many encoded snapshots are kept as delta bases.
const historyDepth = 64

// Server owns the listening socket and every connected peer.
type Server struct {
	cfg     vcnet.ServerConfig
	codec   *proto.Codec
	metrics *vcnet.Metrics
	events  *vcnet.EventBus
	router  *vcnet.Router

	world    game.World
	entities game.EntityManager

	creds  *SQLiteStore
	backup *BackupStore

	mu      sync.Mutex
	running bool
	pc      net.PacketConn
	peers   map[string]*Peer
	byID    map[vcnet.PeerID]*Peer
	players map[vcnet.PeerID]vcnet.PlayerState
	nextID  vcnet.PeerID
	started time.Time

	snapSeq uint64
	history *snapshot.History

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewServer wires a server around the given world and entity manager.
// Start must be called before it accepts traffic.
func NewServer(cfg vcnet.ServerConfig, world game.World, entities game.EntityManager) (*Server, error) {
	if cfg.SnapshotInterval.D() <= 0 {
		cfg.SnapshotInterval = vcnet.Duration(50 * time.Millisecond)
	}
	if cfg.HeartbeatInterval.D() <= 0 {
		cfg.HeartbeatInterval = vcnet.Duration(10 * time.Second)
	}
	if cfg.ConnectionTimeout.D() <= 0 {
		cfg.ConnectionTimeout = vcnet.Duration(30 * time.Second)
	}
	if cfg.MaxPlayers <= 0 {
		cfg.MaxPlayers = 32
	}
	if cfg.BackupInterval.D() <= 0 {
		cfg.BackupInterval = vcnet.Duration(5 * time.Minute)
	}

	metrics := &vcnet.Metrics{}

	codec, err := proto.NewCodec(cfg.Codec, metrics)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}

	srv := &Server{
		cfg:      cfg,
		codec:    codec,
		metrics:  metrics,
		events:   vcnet.NewEventBus(),
		router:   vcnet.NewRouter(),
		world:    world,
		entities: entities,
		peers:    make(map[string]*Peer),
		byID:     make(map[vcnet.PeerID]*Peer),
		players:  make(map[vcnet.PeerID]vcnet.PlayerState),
		nextID:   1,
		history:  snapshot.NewHistory(historyDepth),
	}
	srv.registerHandlers()

	return srv, nil
}

// Metrics exposes the server's counters.
func (srv *Server) Metrics() *vcnet.Metrics { return srv.metrics }

// Events exposes the server's event bus for subscription.
func (srv *Server) Events() *vcnet.EventBus { return srv.events }

// Start opens the auth database and the listening socket and launches
// the server loops. It returns once the server is accepting traffic.
func (srv *Server) Start() error {
	srv.mu.Lock()
	if srv.running {
		srv.mu.Unlock()
		return vcnet.ErrAlreadyRunning
	}

	creds, err := OpenSQLiteStore(srv.cfg.AuthDBPath)
	if err != nil {
		srv.mu.Unlock()
		return fmt.Errorf("auth db: %w", err)
	}

	pc, err := transport.ListenUDP(srv.cfg.Port)
	if err != nil {
		creds.Close()
		srv.mu.Unlock()
		return err
	}

	srv.creds = creds
	srv.pc = pc
	srv.running = true
	srv.started = time.Now()
	srv.quit = make(chan struct{})
	srv.mu.Unlock()

	if srv.cfg.EnableAutoBackup {
		backup, err := OpenBackupStore(srv.cfg.BackupPath)
		if err != nil {
			log.Printf("backup store unavailable: %v", err)
		} else {
			srv.backup = backup
			srv.restoreWorld()
			srv.wg.Add(1)
			go srv.backupLoop()
		}
	}

	srv.wg.Add(3)
	go srv.readLoop()
	go srv.tickLoop()
	go srv.snapshotLoop()

	log.Printf("listening on %s", pc.LocalAddr())
	return nil
}

// Serve starts the server on the given packet conn instead of opening
// a UDP socket. The loopback transport uses this in tests.
func (srv *Server) Serve(pc net.PacketConn) error {
	srv.mu.Lock()
	if srv.running {
		srv.mu.Unlock()
		return vcnet.ErrAlreadyRunning
	}

	creds, err := OpenSQLiteStore(srv.cfg.AuthDBPath)
	if err != nil {
		srv.mu.Unlock()
		return fmt.Errorf("auth db: %w", err)
	}

	srv.creds = creds
	srv.pc = pc
	srv.running = true
	srv.started = time.Now()
	srv.quit = make(chan struct{})
	srv.mu.Unlock()

	srv.wg.Add(3)
	go srv.readLoop()
	go srv.tickLoop()
	go srv.snapshotLoop()

	return nil
}

// Stop notifies every peer, closes all connections and releases the
// socket. It blocks until the loops have exited.
func (srv *Server) Stop() error {
	srv.mu.Lock()
	if !srv.running {
		srv.mu.Unlock()
		return vcnet.ErrNotRunning
	}
	srv.running = false
	peers := srv.allPeersLocked()
	pc := srv.pc
	quit := srv.quit
	srv.mu.Unlock()

	close(quit)

	bye := vcnet.NewMessage(vcnet.MsgConnectionClose, mustMarshal(&vcnet.ConnectionCloseData{
		Reason: "server shutting down",
	}))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range peers {
		// Each peer's channel stamps its own sequence into the
		// message, so every peer needs a copy.
		per := *bye
		per.Receiver = p.ID
		p.Send(ctx, &per)
		p.Flush()
		p.Close()
	}

	pc.Close()
	srv.wg.Wait()

	if srv.backup != nil {
		srv.saveWorld()
		srv.backup.Close()
	}
	if srv.creds != nil {
		srv.creds.Close()
	}

	log.Print("server stopped")
	return nil
}

// Uptime reports how long the server has been running.
func (srv *Server) Uptime() time.Duration {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !srv.running {
		return 0
	}
	return time.Since(srv.started)
}

// ConnectedPlayers lists the peers that completed the handshake.
func (srv *Server) ConnectedPlayers() []*Peer {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	out := make([]*Peer, 0, len(srv.byID))
	for _, p := range srv.byID {
		if p.State().Ready() {
			out = append(out, p)
		}
	}

	return out
}

func (srv *Server) allPeersLocked() []*Peer {
	out := make([]*Peer, 0, len(srv.peers))
	for _, p := range srv.peers {
		out = append(out, p)
	}
	return out
}

func (srv *Server) peerByID(id vcnet.PeerID) (*Peer, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	p, ok := srv.byID[id]
	return p, ok
}

// SendMessage delivers msg to one peer over the channel its type
// mandates.
func (srv *Server) SendMessage(id vcnet.PeerID, msg *vcnet.Message) error {
	p, ok := srv.peerByID(id)
	if !ok {
		return fmt.Errorf("%w: %d", vcnet.ErrUnknownPeer, id)
	}
	if !p.State().Ready() {
		return fmt.Errorf("%w: %d is %s", vcnet.ErrPeerNotReady, id, p.State())
	}

	return p.Send(context.Background(), msg.To(id))
}

// Broadcast delivers msg to every ready peer except those listed.
func (srv *Server) Broadcast(msg *vcnet.Message, except ...vcnet.PeerID) {
	skip := make(map[vcnet.PeerID]bool, len(except))
	for _, id := range except {
		skip[id] = true
	}

	for _, p := range srv.ConnectedPlayers() {
		if skip[p.ID] {
			continue
		}
		// Each peer's channel stamps its own sequence number into the
		// message, so every peer needs a copy.
		per := *msg
		per.Receiver = p.ID
		if err := p.Send(context.Background(), &per); err != nil {
			log.Printf("broadcast to %d: %v", p.ID, err)
		}
	}
}

// readLoop owns the socket and demultiplexes datagrams to peers by
// remote address. Datagrams from unknown addresses spawn a peer in
// the Connecting state; everything further is message-level.
func (srv *Server) readLoop() {
	defer srv.wg.Done()

	pkts := make(chan transport.Datagram, 64)
	errs := make(chan error, 1)
	go transport.ReadLoop(srv.pc, pkts, errs)

	for {
		select {
		case pkt, ok := <-pkts:
			if !ok {
				return
			}
			srv.route(pkt)
		case err := <-errs:
			log.Printf("read: %v", err)
		case <-srv.quit:
			return
		}
	}
}

func (srv *Server) route(pkt transport.Datagram) {
	key := pkt.Addr.String()

	srv.mu.Lock()
	p, ok := srv.peers[key]
	if !ok {
		if !srv.running {
			srv.mu.Unlock()
			return
		}
		p = srv.newPeerLocked(pkt.Addr)
	}
	srv.mu.Unlock()

	p.HandleDatagram(pkt.Data)
}

// newPeerLocked registers a connection attempt. Admission control
// runs later, on the ConnectionRequest message, where the username
// and protocol version are known.
func (srv *Server) newPeerLocked(addr net.Addr) *Peer {
	p := &Peer{
		Conn:   channel.NewConn(srv.pc, addr, srv.codec, srv.cfg.Channel, srv.cfg.Codec, srv.metrics),
		ID:     srv.nextID,
		state:  vcnet.StateConnecting,
		joined: time.Now(),
	}
	srv.nextID++
	srv.peers[addr.String()] = p
	srv.byID[p.ID] = p

	srv.wg.Add(1)
	go srv.peerLoop(p)

	log.Printf("peer %d: connecting from %s", p.ID, addr)
	return p
}

func (srv *Server) peerLoop(p *Peer) {
	defer srv.wg.Done()

	for {
		msg, err := p.Recv()
		if err != nil {
			if p.State() != vcnet.StateDisconnected {
				srv.dropPeer(p, err.Error())
			}
			return
		}
		srv.router.Dispatch(p.ID, msg)
	}
}

// dropPeer tears a peer down and tells the world about it.
func (srv *Server) dropPeer(p *Peer, reason string) {
	srv.mu.Lock()
	delete(srv.peers, p.Addr().String())
	delete(srv.byID, p.ID)
	delete(srv.players, p.ID)
	srv.mu.Unlock()

	wasReady := p.State().Ready()
	p.setState(vcnet.StateDisconnected)
	p.Close()

	log.Printf("peer %d (%s): dropped: %s", p.ID, p.Username(), reason)
	srv.events.Publish(vcnet.Event{Kind: vcnet.EventDisconnected, Peer: p.ID, Reason: reason})

	if wasReady {
		srv.Broadcast(vcnet.NewMessage(vcnet.MsgPlayerLeave, mustMarshal(&vcnet.PlayerLeaveData{
			PeerID:   p.ID,
			Username: p.Username(),
			Reason:   reason,
		})))
	}
}

// KickPlayer disconnects a peer with a reason, notifying it first.
func (srv *Server) KickPlayer(id vcnet.PeerID, reason string) error {
	p, ok := srv.peerByID(id)
	if !ok {
		return fmt.Errorf("%w: %d", vcnet.ErrUnknownPeer, id)
	}

	msg := vcnet.NewMessage(vcnet.MsgConnectionClose, mustMarshal(&vcnet.ConnectionCloseData{
		Reason: reason,
	}))
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	p.Send(ctx, msg.To(id))
	p.Flush()

	srv.events.Publish(vcnet.Event{Kind: vcnet.EventPeerKicked, Peer: id, Reason: reason})
	srv.dropPeer(p, "kicked: "+reason)

	return nil
}

// BanPlayer bans the peer's account and address, then kicks it. A
// zero duration bans permanently.
func (srv *Server) BanPlayer(id vcnet.PeerID, reason string, d time.Duration) error {
	p, ok := srv.peerByID(id)
	if !ok {
		return fmt.Errorf("%w: %d", vcnet.ErrUnknownPeer, id)
	}

	if err := srv.creds.Ban(hostOf(p.Addr()), p.Username(), reason, d); err != nil {
		return err
	}

	srv.events.Publish(vcnet.Event{Kind: vcnet.EventPeerBanned, Peer: id, Reason: reason})
	return srv.KickPlayer(id, "banned: "+reason)
}

// Unban lifts any ban matching name, keyed either by account name or
// by address.
func (srv *Server) Unban(name string) error {
	if srv.creds == nil {
		return vcnet.ErrNotRunning
	}
	return srv.creds.Unban(name)
}

// BanList returns the bans currently in force.
func (srv *Server) BanList() ([]BanEntry, error) {
	if srv.creds == nil {
		return nil, vcnet.ErrNotRunning
	}
	return srv.creds.BanList()
}

// AddWhitelist admits name on future connection attempts. It does not
// affect peers already connected.
func (srv *Server) AddWhitelist(name string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	if !contains(srv.cfg.Whitelist, name) {
		srv.cfg.Whitelist = append(srv.cfg.Whitelist, name)
	}
}

// RemoveWhitelist removes name from the whitelist. It does not kick a
// connected peer.
func (srv *Server) RemoveWhitelist(name string) {
	srv.mu.Lock()
	defer srv.mu.Unlock()

	for i, v := range srv.cfg.Whitelist {
		if v == name {
			srv.cfg.Whitelist = append(srv.cfg.Whitelist[:i], srv.cfg.Whitelist[i+1:]...)
			return
		}
	}
}

// tickLoop runs housekeeping: heartbeats, idle timeouts and expiry of
// stale fragment assemblies.
func (srv *Server) tickLoop() {
	defer srv.wg.Done()

	heartbeat := time.NewTicker(srv.cfg.HeartbeatInterval.D())
	house := time.NewTicker(time.Second)
	defer heartbeat.Stop()
	defer house.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-heartbeat.C:
			srv.sendHeartbeats()
		case now := <-house.C:
			srv.expirePeers(now)
		}
	}
}

// sendHeartbeats probes peers that have gone quiet for a full
// heartbeat interval. Peers with recent traffic prove liveness on
// their own.
func (srv *Server) sendHeartbeats() {
	now := time.Now()
	interval := srv.cfg.HeartbeatInterval.D()

	for _, p := range srv.ConnectedPlayers() {
		if now.Sub(p.LastInbound()) < interval {
			continue
		}
		msg := vcnet.NewMessage(vcnet.MsgHeartbeat, mustMarshal(&vcnet.HeartbeatData{
			SentAt: now.UnixMilli(),
		}))
		p.Send(context.Background(), msg.To(p.ID))
	}
}

func (srv *Server) expirePeers(now time.Time) {
	timeout := srv.cfg.ConnectionTimeout.D()

	srv.mu.Lock()
	peers := srv.allPeersLocked()
	srv.mu.Unlock()

	for _, p := range peers {
		p.Expire(now)
		if now.Sub(p.LastInbound()) > timeout {
			srv.dropPeer(p, "connection timeout")
		}
	}
}

// restoreWorld loads the last backed-up world state, if any.
func (srv *Server) restoreWorld() {
	enc, seq, err := srv.backup.Load()
	if err != nil {
		log.Printf("restore: %v", err)
		return
	}
	if enc == nil {
		return
	}

	if err := srv.world.ApplyDelta(enc); err != nil {
		log.Printf("restore: %v", err)
		return
	}

	srv.mu.Lock()
	srv.snapSeq = seq
	srv.mu.Unlock()

	log.Printf("restored world from backup (seq %d)", seq)
}

func (srv *Server) saveWorld() {
	srv.mu.Lock()
	seq := srv.snapSeq
	srv.mu.Unlock()

	if err := srv.backup.Save(srv.world.Serialize(), seq); err != nil {
		log.Printf("backup: %v", err)
	}
}

func (srv *Server) backupLoop() {
	defer srv.wg.Done()

	t := time.NewTicker(srv.cfg.BackupInterval.D())
	defer t.Stop()

	for {
		select {
		case <-srv.quit:
			return
		case <-t.C:
			srv.saveWorld()
		}
	}
}

func hostOf(addr net.Addr) string {
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

func mustMarshal(v interface{ MarshalBinary() ([]byte, error) }) []byte {
	b, err := v.MarshalBinary()
	if err != nil {
		panic(err)
	}
	return b
}
