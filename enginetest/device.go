package enginetest

import (
	"context"
	"strconv"

	"github.com/wippyai/syngen/abi"
)

// GetCPU returns the CPU device id.
func (e *Engine) GetCPU(_ context.Context) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetCPU)
	return 0, nil
}

// GetGPUs reports two GPUs.
func (e *Engine) GetGPUs(_ context.Context) (abi.Array, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetGPUs)
	return e.intArray([]int32{1, 2}), nil
}

// GetAllDevices reports the CPU and two GPUs.
func (e *Engine) GetAllDevices(_ context.Context) (abi.Array, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetAllDevices)
	return e.intArray([]int32{0, 1, 2}), nil
}

func (e *Engine) setFlag(entry string, on bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(entry)
	e.flags[entry] = on
	return nil
}

// SetSuppressOutput records the toggle.
func (e *Engine) SetSuppressOutput(_ context.Context, on bool) error {
	return e.setFlag(abi.EntrySetSuppressOutput, on)
}

// SetWarnings records the toggle.
func (e *Engine) SetWarnings(_ context.Context, on bool) error {
	return e.setFlag(abi.EntrySetWarnings, on)
}

// SetDebug records the toggle.
func (e *Engine) SetDebug(_ context.Context, on bool) error {
	return e.setFlag(abi.EntrySetDebug, on)
}

// GetMPIRank returns 0.
func (e *Engine) GetMPIRank(_ context.Context) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetMPIRank)
	return 0, nil
}

// GetMPISize returns 1.
func (e *Engine) GetMPISize(_ context.Context) (int32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(abi.EntryGetMPISize)
	return 1, nil
}

func (e *Engine) addCallback(entry, namespace, name string, addr abi.Addr) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.count(entry)
	if e.callbacks[namespace] == nil {
		e.callbacks[namespace] = make(map[string]abi.Addr)
	}
	e.callbacks[namespace][name] = addr
	return nil
}

// AddIOCallback records an IO callback address.
func (e *Engine) AddIOCallback(_ context.Context, name string, addr abi.Addr) error {
	return e.addCallback(abi.EntryAddIOCallback, abi.NamespaceIO, name, addr)
}

// AddWeightCallback records a weight callback address.
func (e *Engine) AddWeightCallback(_ context.Context, name string, addr abi.Addr) error {
	return e.addCallback(abi.EntryAddWeightCallback, abi.NamespaceWeight, name, addr)
}

// AddIndicesWeightCallback records an indices-weight callback address.
func (e *Engine) AddIndicesWeightCallback(_ context.Context, name string, addr abi.Addr) error {
	return e.addCallback(abi.EntryAddIndicesWeightCallback, abi.NamespaceIndicesWeight, name, addr)
}

// AddDistanceWeightCallback records a distance-weight callback address.
func (e *Engine) AddDistanceWeightCallback(_ context.Context, name string, addr abi.Addr) error {
	return e.addCallback(abi.EntryAddDistanceWeightCallback, abi.NamespaceDistanceWeight, name, addr)
}

// AddDelayWeightCallback records a delay-weight callback address.
func (e *Engine) AddDelayWeightCallback(_ context.Context, name string, addr abi.Addr) error {
	return e.addCallback(abi.EntryAddDelayWeightCallback, abi.NamespaceDelayWeight, name, addr)
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

func atof(s string, def float64) float64 {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return def
	}
	return f
}
