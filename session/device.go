package session

import (
	"context"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/array"
	"github.com/wippyai/syngen/errors"
)

// CPU returns the engine's CPU device id.
func (c *Client) CPU(ctx context.Context) (int32, error) {
	id, err := c.eng.GetCPU(ctx)
	if err != nil {
		return 0, errors.Foreign(abi.EntryGetCPU, err)
	}
	return id, nil
}

// GPUs lists GPU device ids.
func (c *Client) GPUs(ctx context.Context) ([]int32, error) {
	return c.devices(ctx, abi.EntryGetGPUs, c.eng.GetGPUs)
}

// AllDevices lists every device id, CPU included.
func (c *Client) AllDevices(ctx context.Context) ([]int32, error) {
	return c.devices(ctx, abi.EntryGetAllDevices, c.eng.GetAllDevices)
}

func (c *Client) devices(ctx context.Context, entry string, get func(context.Context) (abi.Array, error)) ([]int32, error) {
	desc, err := get(ctx)
	if err != nil {
		return nil, errors.Foreign(entry, err)
	}
	v := array.FromEntry(c.eng, entry, desc)
	defer v.Release(ctx)
	return v.Int32s()
}

// SetSuppressOutput silences engine console output.
func (c *Client) SetSuppressOutput(ctx context.Context, on bool) error {
	c.config.SuppressOutput = on
	return wrapForeign(abi.EntrySetSuppressOutput, c.eng.SetSuppressOutput(ctx, on))
}

// SetWarnings toggles engine warnings.
func (c *Client) SetWarnings(ctx context.Context, on bool) error {
	c.config.Warnings = on
	return wrapForeign(abi.EntrySetWarnings, c.eng.SetWarnings(ctx, on))
}

// SetDebug toggles engine debug output.
func (c *Client) SetDebug(ctx context.Context, on bool) error {
	c.config.Debug = on
	return wrapForeign(abi.EntrySetDebug, c.eng.SetDebug(ctx, on))
}

// Interrupt asks a running simulation to stop. It may be called from any
// goroutine.
func (c *Client) Interrupt(ctx context.Context) error {
	return wrapForeign(abi.EntryInterrupt, c.eng.Interrupt(ctx))
}

// MPIRank returns this process's MPI rank.
func (c *Client) MPIRank(ctx context.Context) (int32, error) {
	r, err := c.eng.GetMPIRank(ctx)
	return r, wrapForeign(abi.EntryGetMPIRank, err)
}

// MPISize returns the MPI world size.
func (c *Client) MPISize(ctx context.Context) (int32, error) {
	s, err := c.eng.GetMPISize(ctx)
	return s, wrapForeign(abi.EntryGetMPISize, err)
}

func wrapForeign(entry string, err error) error {
	if err == nil {
		return nil
	}
	return errors.Foreign(entry, err)
}
