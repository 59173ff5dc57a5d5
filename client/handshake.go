package client

import (
	"log"
	"strings"
	"time"

	"github.com/HimbeerserverDE/srp"
	"github.com/voxelcraft/vcnet"
)

func (c *Client) registerHandlers() {
	c.router.Handle(vcnet.MsgConnectionAccept, c.handleAccept)
	c.router.Handle(vcnet.MsgConnectionReject, c.handleReject)
	c.router.Handle(vcnet.MsgConnectionClose, c.handleClose)
	c.router.Handle(vcnet.MsgAuthResponse, c.handleAuthResponse)
	c.router.Handle(vcnet.MsgAuthSuccess, c.handleAuthSuccess)
	c.router.Handle(vcnet.MsgAuthFailure, c.handleAuthFailure)
	c.router.Handle(vcnet.MsgHeartbeat, c.handleHeartbeat)
	c.router.Handle(vcnet.MsgTimeSync, c.handleTimeSync)
	c.router.Handle(vcnet.MsgLatencyUpdate, c.handleLatencyUpdate)
	c.router.Handle(vcnet.MsgStateSync, c.handleStateSync)
	c.router.Handle(vcnet.MsgChat, c.handleChat)
	c.router.Handle(vcnet.MsgPlayerJoin, c.handlePlayerJoin)
	c.router.Handle(vcnet.MsgPlayerLeave, c.handlePlayerLeave)
	c.router.Handle(vcnet.MsgEntityCreate, c.handleEntityCreate)
	c.router.Handle(vcnet.MsgEntityUpdate, c.handleEntityUpdate)
	c.router.Handle(vcnet.MsgEntityDestroy, c.handleEntityDestroy)
	c.router.Handle(vcnet.MsgWarning, c.handleWarning)
	c.router.HandleFallback(func(_ vcnet.PeerID, msg *vcnet.Message) {
		log.Printf("client: unhandled %s message", msg.Type)
	})
}

func (c *Client) finishHandshake(err error) {
	c.mu.Lock()
	ch := c.handshake
	c.handshake = nil
	c.mu.Unlock()

	if ch != nil {
		ch <- err
	}
}

// srpName is the canonical form the verifier is derived from.
func (c *Client) srpName() []byte {
	return []byte(strings.ToLower(c.cfg.Username))
}

func (c *Client) handleAccept(_ vcnet.PeerID, msg *vcnet.Message) {
	if c.State() != vcnet.StateConnecting {
		return
	}

	var d vcnet.ConnectionAcceptData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		c.finishHandshake(&vcnet.ProtocolError{Reason: "malformed connection accept", Err: err})
		return
	}

	c.mu.Lock()
	c.peerID = d.PeerID
	c.clockOffset = d.ServerTime - time.Now().UnixMilli()
	c.mu.Unlock()

	c.setState(vcnet.StateAuthenticating)

	switch d.AuthMech {
	case vcnet.AuthMechFirstSRP:
		salt, verifier, err := srp.NewClient(c.srpName(), []byte(c.cfg.Password))
		if err != nil {
			c.finishHandshake(err)
			return
		}
		c.sendNow(vcnet.NewMessage(vcnet.MsgAuthRequest, mustMarshal(&vcnet.AuthRequestData{
			Mech:     vcnet.AuthMechFirstSRP,
			Salt:     salt,
			Verifier: verifier,
		})))

	case vcnet.AuthMechSRP:
		A, a, err := srp.InitiateHandshake()
		if err != nil {
			c.finishHandshake(err)
			return
		}
		c.mu.Lock()
		c.srpA, c.srpa = A, a
		c.mu.Unlock()
		c.sendNow(vcnet.NewMessage(vcnet.MsgAuthRequest, mustMarshal(&vcnet.AuthRequestData{
			Mech: vcnet.AuthMechSRP,
			A:    A,
		})))

	default:
		c.finishHandshake(&vcnet.ProtocolError{Reason: "unknown auth mechanism"})
	}
}

// handleAuthResponse answers the server's SRP challenge with a proof
// derived from the shared session key.
func (c *Client) handleAuthResponse(_ vcnet.PeerID, msg *vcnet.Message) {
	if c.State() != vcnet.StateAuthenticating {
		return
	}

	var d vcnet.AuthResponseData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		c.finishHandshake(&vcnet.ProtocolError{Reason: "malformed auth response", Err: err})
		return
	}

	c.mu.Lock()
	A, a := c.srpA, c.srpa
	c.mu.Unlock()

	K, err := srp.CompleteHandshake(A, a, c.srpName(), []byte(c.cfg.Password), d.Salt, d.B)
	if err != nil {
		c.finishHandshake(err)
		return
	}

	M := srp.CalculateM([]byte(c.cfg.Username), d.Salt, A, d.B, K)
	c.sendNow(vcnet.NewMessage(vcnet.MsgAuthResponse, mustMarshal(&vcnet.AuthResponseData{
		Proof: M,
	})))
}

// handleAuthSuccess moves the client into Loading; the handshake
// completes once the initial full snapshot lands.
func (c *Client) handleAuthSuccess(_ vcnet.PeerID, msg *vcnet.Message) {
	if c.State() != vcnet.StateAuthenticating {
		return
	}

	var d vcnet.AuthSuccessData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		c.finishHandshake(&vcnet.ProtocolError{Reason: "malformed auth success", Err: err})
		return
	}

	c.mu.Lock()
	c.srpA, c.srpa = nil, nil
	c.userID = d.UserID
	c.mu.Unlock()

	c.setState(vcnet.StateLoading)
	log.Printf("client: authenticated as %q", d.Username)
}

func (c *Client) handleAuthFailure(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.AuthFailureData
	d.UnmarshalBinary(msg.Payload)

	c.mu.Lock()
	c.srpA, c.srpa = nil, nil
	c.mu.Unlock()

	c.finishHandshake(&vcnet.ConnectionRejectedError{
		Reason:  vcnet.RejectAuthFailed,
		Message: d.Reason,
	})
}

func (c *Client) handleReject(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.ConnectionRejectData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		c.finishHandshake(&vcnet.ProtocolError{Reason: "malformed connection reject", Err: err})
		return
	}

	c.finishHandshake(&vcnet.ConnectionRejectedError{
		Reason:  d.Reason,
		Message: d.Message,
	})
}

func (c *Client) handleClose(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.ConnectionCloseData
	d.UnmarshalBinary(msg.Payload)

	log.Printf("client: server closed the connection: %s", d.Reason)

	c.mu.Lock()
	c.running = false
	quit := c.quit
	c.mu.Unlock()

	c.setState(vcnet.StateDisconnected)
	c.events.Publish(vcnet.Event{Kind: vcnet.EventDisconnected, Peer: c.PeerID(), Reason: d.Reason})

	select {
	case <-quit:
	default:
		close(quit)
	}
	c.teardownConn()
}

func (c *Client) handleHeartbeat(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.HeartbeatData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}

	if d.EchoedAt != 0 {
		rtt := time.Duration(time.Now().UnixMilli()-d.EchoedAt) * time.Millisecond

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.RecordPing(rtt)
		}
		return
	}

	c.sendNow(vcnet.NewMessage(vcnet.MsgHeartbeat, mustMarshal(&vcnet.HeartbeatData{
		SentAt:   time.Now().UnixMilli(),
		EchoedAt: d.SentAt,
	})))
}

func (c *Client) handleTimeSync(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.TimeSyncData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}

	now := time.Now().UnixMilli()
	rtt := now - d.ClientSent

	c.mu.Lock()
	c.clockOffset = d.ServerTime + rtt/2 - now
	c.mu.Unlock()
}

func (c *Client) handleLatencyUpdate(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.LatencyUpdateData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	log.Printf("client: server measured ping %dms", d.PingMillis)
}

func (c *Client) handleChat(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.ChatData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	log.Printf("chat: <%s> %s", d.Sender, d.Text)
}

func (c *Client) handlePlayerJoin(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.PlayerJoinData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	log.Printf("client: %s joined", d.Username)
}

func (c *Client) handlePlayerLeave(_ vcnet.PeerID, msg *vcnet.Message) {
	var d vcnet.PlayerLeaveData
	if err := d.UnmarshalBinary(msg.Payload); err != nil {
		return
	}
	log.Printf("client: %s left (%s)", d.Username, d.Reason)
}

func (c *Client) handleWarning(_ vcnet.PeerID, msg *vcnet.Message) {
	log.Printf("client: server warning: %s", msg.Payload)
}
