package resource

import (
	"context"
	"sync/atomic"

	"github.com/wippyai/syngen/abi"
	"github.com/wippyai/syngen/errors"
)

const (
	stateLive uint32 = iota
	stateReleased
	stateDisowned
)

// Handle exclusively owns one foreign object. It is move-only: pass
// *Handle around, never copy the struct.
type Handle struct {
	noCopy  noCopy
	table   *Table
	destroy DestroyFunc
	ptr     abi.Ptr
	kind    Kind
	state   atomic.Uint32
}

// New takes ownership of ptr. When table is non-nil the pointer is claimed
// there and New fails if another handle already owns it. A null ptr yields
// a null handle that owns nothing.
func New(table *Table, kind Kind, ptr abi.Ptr, destroy DestroyFunc) (*Handle, error) {
	h := &Handle{table: table, destroy: destroy, ptr: ptr, kind: kind}
	if ptr.IsNull() {
		h.state.Store(stateReleased)
		return h, nil
	}
	if table != nil {
		if err := table.claim(h); err != nil {
			return nil, err
		}
	}
	return h, nil
}

// Ptr returns the foreign pointer, or abi.Null once the handle is no
// longer live.
func (h *Handle) Ptr() abi.Ptr {
	if h == nil || h.state.Load() != stateLive {
		return abi.Null
	}
	return h.ptr
}

// Kind returns what the handle points at.
func (h *Handle) Kind() Kind { return h.kind }

// Live reports whether the handle still owns its object.
func (h *Handle) Live() bool {
	return h != nil && h.state.Load() == stateLive
}

// IsNull reports whether the handle was created for a null pointer.
func (h *Handle) IsNull() bool {
	return h == nil || h.ptr.IsNull()
}

// Require returns the pointer or a released error.
func (h *Handle) Require() (abi.Ptr, error) {
	if !h.Live() {
		kind := "handle"
		if h != nil {
			kind = h.kind.String() + " handle"
		}
		return abi.Null, errors.Released(errors.PhaseSession, kind)
	}
	return h.ptr, nil
}

// Release destroys the foreign object. Only the first call reaches the
// engine; later calls and calls on disowned handles do nothing.
func (h *Handle) Release(ctx context.Context) error {
	if h == nil || !h.state.CompareAndSwap(stateLive, stateReleased) {
		return nil
	}
	if h.table != nil {
		h.table.drop(h, EventReleased)
	}
	if h.destroy == nil {
		return nil
	}
	if err := h.destroy(ctx, h.ptr); err != nil {
		return errors.Foreign("destroy "+h.kind.String(), err)
	}
	return nil
}

// Disown gives up ownership without destroying the object, because some
// other foreign object (a parent tree) now owns it.
func (h *Handle) Disown() {
	if h == nil || !h.state.CompareAndSwap(stateLive, stateDisowned) {
		return
	}
	if h.table != nil {
		h.table.drop(h, EventDisowned)
	}
}
