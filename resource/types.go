package resource

import (
	"context"

	"github.com/wippyai/syngen/abi"
)

// Kind identifies what a foreign handle points at.
type Kind uint8

const (
	KindProperties Kind = iota + 1
	KindNetwork
	KindEnvironment
	KindState
)

func (k Kind) String() string {
	switch k {
	case KindProperties:
		return "properties"
	case KindNetwork:
		return "network"
	case KindEnvironment:
		return "environment"
	case KindState:
		return "state"
	default:
		return "unknown"
	}
}

// DestroyFunc releases a foreign object.
type DestroyFunc func(ctx context.Context, ptr abi.Ptr) error

// EventType identifies handle lifecycle notifications.
type EventType uint8

const (
	EventClaimed EventType = iota
	EventReleased
	EventDisowned
)

// Event represents a handle lifecycle event.
type Event struct {
	Ptr  abi.Ptr
	Kind Kind
	Type EventType
}

// Observer receives notifications about handle lifecycle events.
type Observer interface {
	OnHandleEvent(Event)
}

// noCopy may be embedded in structs that must not be copied after first
// use. See https://golang.org/issues/8005#issuecomment-190753527.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
