package engine

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	"github.com/wippyai/syngen"
	"github.com/wippyai/syngen/errors"
)

// guestAllocator implements syngen.Allocator with the guest's malloc and
// free exports.
type guestAllocator struct {
	mallocFn api.Function
	freeFn   api.Function
	stackMu  sync.Mutex
	stackBuf [1]uint64
}

func (a *guestAllocator) Alloc(size, _ uint32) (uint32, error) {
	return a.allocCtx(context.Background(), size)
}

func (a *guestAllocator) allocCtx(ctx context.Context, size uint32) (uint32, error) {
	a.stackMu.Lock()
	defer a.stackMu.Unlock()

	a.stackBuf[0] = api.EncodeU32(size)
	if err := a.mallocFn.CallWithStack(ctx, a.stackBuf[:]); err != nil {
		return 0, errors.Foreign(exportMalloc, err)
	}
	ptr := api.DecodeU32(a.stackBuf[0])
	if ptr == 0 {
		return 0, errors.AllocationFailed(errors.PhaseForeign, size, 0)
	}
	return ptr, nil
}

func (a *guestAllocator) Free(ptr, size, _ uint32) {
	a.freeCtx(context.Background(), ptr, size)
}

func (a *guestAllocator) freeCtx(ctx context.Context, ptr, size uint32) {
	if ptr == 0 {
		return
	}
	a.stackMu.Lock()
	defer a.stackMu.Unlock()

	a.stackBuf[0] = api.EncodeU32(ptr)
	if err := a.freeFn.CallWithStack(ctx, a.stackBuf[:]); err != nil {
		Logger().Warn("free failed",
			zap.Uint32("ptr", ptr),
			zap.Uint32("size", size),
			zap.Error(err))
	}
}

var _ syngen.Allocator = (*guestAllocator)(nil)
