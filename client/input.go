package client

import (
	"context"
	"time"

	"github.com/voxelcraft/vcnet"
)

// SendInput stamps one input command with the next sequence, predicts
// its outcome locally and ships it to the server. The returned state
// is the prediction; without prediction enabled it is the zero value.
func (c *Client) SendInput(cmd vcnet.InputCommand) (vcnet.PlayerState, error) {
	if c.State() != vcnet.StatePlaying {
		return vcnet.PlayerState{}, vcnet.ErrPeerNotReady
	}

	c.mu.Lock()
	c.inputSeq++
	cmd.Seq = c.inputSeq
	conn := c.conn
	c.mu.Unlock()

	if cmd.Timestamp == 0 {
		cmd.Timestamp = time.Now().UnixMilli()
	}

	var predicted vcnet.PlayerState
	if c.cfg.EnableClientSidePrediction {
		predicted = c.predictor.Apply(&cmd)
	}

	if conn == nil {
		return predicted, vcnet.ErrPeerNotReady
	}

	msg := vcnet.NewMessage(vcnet.MsgInputCommand, mustMarshal(&cmd))
	if err := conn.Send(context.Background(), msg); err != nil {
		return predicted, err
	}

	return predicted, nil
}
