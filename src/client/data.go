package client

import (
	"context"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/messaging"
	"github.com/maidsafe/temp-safe-network-sub012/src/types"
	"github.com/maidsafe/temp-safe-network-sub012/src/xor"
)

// cmd sends a data command and waits for the first ack.
func (c *Client) cmd(ctx context.Context, cmd messaging.DataCmd) (messaging.CmdAck, error) {
	resp, err := c.send(ctx, cmd.DstName(), messaging.ServiceMsg{Cmd: &cmd})
	if err != nil {
		return messaging.CmdAck{}, err
	}
	if resp.CmdAck == nil {
		return messaging.CmdAck{}, common.NewError(common.InvalidMessage, "expected CmdAck, got %s", resp.Name())
	}
	return *resp.CmdAck, nil
}

// query sends a data query and waits for the first successful response.
func (c *Client) query(ctx context.Context, q messaging.DataQuery) (messaging.QueryResponse, error) {
	resp, err := c.send(ctx, q.DstName(), messaging.ServiceMsg{Query: &q})
	if err != nil {
		return messaging.QueryResponse{}, err
	}
	if resp.QueryResponse == nil {
		return messaging.QueryResponse{}, common.NewError(common.InvalidMessage, "expected QueryResponse, got %s", resp.Name())
	}
	return *resp.QueryResponse, nil
}

// StoreChunk stores a chunk with the adults of its section.
func (c *Client) StoreChunk(ctx context.Context, chunk types.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return err
	}
	_, err := c.cmd(ctx, messaging.DataCmd{StoreChunk: &chunk})
	return err
}

// GetChunk fetches a chunk and checks it matches its address.
func (c *Client) GetChunk(ctx context.Context, addr xor.Name) (types.Chunk, error) {
	resp, err := c.query(ctx, messaging.DataQuery{GetChunk: &addr})
	if err != nil {
		return types.Chunk{}, err
	}
	if resp.Chunk == nil {
		return types.Chunk{}, common.NewError(common.DataNotFound, "chunk %v", addr)
	}
	chunk := *resp.Chunk
	if chunk.Address != addr {
		return types.Chunk{}, common.NewError(common.InvalidMessage, "asked for chunk %v, got %v", addr, chunk.Address)
	}
	if err := chunk.Validate(); err != nil {
		return types.Chunk{}, err
	}
	return chunk, nil
}

// DeleteChunk deletes a private chunk we own.
func (c *Client) DeleteChunk(ctx context.Context, addr xor.Name) error {
	_, err := c.cmd(ctx, messaging.DataCmd{DeleteChunk: &addr})
	return err
}

// ApplyRegister ...
func (c *Client) ApplyRegister(ctx context.Context, op types.RegisterOp) error {
	op.Author = c.PublicKey()
	_, err := c.cmd(ctx, messaging.DataCmd{Register: &op})
	return err
}

// GetRegister ...
func (c *Client) GetRegister(ctx context.Context, addr types.Address) (types.Register, error) {
	resp, err := c.query(ctx, messaging.DataQuery{GetRegister: &addr})
	if err != nil {
		return types.Register{}, err
	}
	if resp.Register == nil {
		return types.Register{}, common.NewError(common.DataNotFound, "register %v", addr)
	}
	return *resp.Register, nil
}

// ApplyMap ...
func (c *Client) ApplyMap(ctx context.Context, op types.MapOp) error {
	op.Author = c.PublicKey()
	_, err := c.cmd(ctx, messaging.DataCmd{Map: &op})
	return err
}

// GetMap ...
func (c *Client) GetMap(ctx context.Context, addr types.Address) (types.Map, error) {
	resp, err := c.query(ctx, messaging.DataQuery{GetMap: &addr})
	if err != nil {
		return types.Map{}, err
	}
	if resp.Map == nil {
		return types.Map{}, common.NewError(common.DataNotFound, "map %v", addr)
	}
	return *resp.Map, nil
}

// ApplySequence ...
func (c *Client) ApplySequence(ctx context.Context, op types.SequenceOp) error {
	op.Author = c.PublicKey()
	_, err := c.cmd(ctx, messaging.DataCmd{Sequence: &op})
	return err
}

// GetSequence ...
func (c *Client) GetSequence(ctx context.Context, addr types.Address) (types.Sequence, error) {
	resp, err := c.query(ctx, messaging.DataQuery{GetSequence: &addr})
	if err != nil {
		return types.Sequence{}, err
	}
	if resp.Sequence == nil {
		return types.Sequence{}, common.NewError(common.DataNotFound, "sequence %v", addr)
	}
	return *resp.Sequence, nil
}
