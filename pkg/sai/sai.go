// Package sai defines the Switch Abstraction Interface boundary: the
// opaque capability set of spec.md §6 ("create, remove, set_attribute,
// get_attribute, and a notification channel, each parameterized by
// opaque object type"). The agent never interprets an object id beyond
// equality and the null sentinel (spec.md §4.6); this package treats SAI
// itself as an external collaborator, per spec.md §1's scope boundary,
// and exposes only the capability-set shape handlers program against.
package sai

import (
	"context"
	"errors"
)

// ObjectType names one of the hardware resource kinds SAI create/remove
// is parameterized by.
type ObjectType string

const (
	ObjectPort             ObjectType = "PORT"
	ObjectRouterInterface  ObjectType = "ROUTER_INTERFACE"
	ObjectVirtualRouter    ObjectType = "VIRTUAL_ROUTER"
	ObjectNextHop          ObjectType = "NEXT_HOP"
	ObjectNextHopGroup     ObjectType = "NEXT_HOP_GROUP"
	ObjectNextHopGroupMbr  ObjectType = "NEXT_HOP_GROUP_MEMBER"
	ObjectRoute            ObjectType = "ROUTE_ENTRY"
	ObjectNeighbor         ObjectType = "NEIGHBOR_ENTRY"
	ObjectFDBEntry         ObjectType = "FDB_ENTRY"
	ObjectMirrorSession    ObjectType = "MIRROR_SESSION"
	ObjectPolicer          ObjectType = "POLICER"
	ObjectBufferPool       ObjectType = "BUFFER_POOL"
	ObjectBufferProfile    ObjectType = "BUFFER_PROFILE"
	ObjectTunnel           ObjectType = "TUNNEL"
	ObjectTunnelTerm       ObjectType = "TUNNEL_TERM_TABLE_ENTRY"
	ObjectACLTable         ObjectType = "ACL_TABLE"
	ObjectACLEntry         ObjectType = "ACL_ENTRY"
	ObjectTunnelMapEntry   ObjectType = "TUNNEL_MAP_ENTRY"
	ObjectVLAN             ObjectType = "VLAN"
)

// Attrs is a semantic attribute set passed across the SAI boundary. Keys
// are SAI attribute names; values are pre-formatted for the boundary
// (the agent, not SAI, owns string<->typed conversion, per swtypes).
type Attrs map[string]string

// Errors classifying SAI boundary failures, spec.md §4.8. Transient
// failures map to the handler outcome NeedRetry; permanent failures map
// to Failed.
var (
	ErrBusy                 = errors.New("sai: resource busy")
	ErrTableFull             = errors.New("sai: table full but growing")
	ErrUnsupportedAttribute = errors.New("sai: unsupported attribute")
	ErrInvalidValue         = errors.New("sai: invalid attribute value")
	ErrNotFound             = errors.New("sai: object not found")
	ErrInitFailed           = errors.New("sai: initialization failed")
)

// IsTransient reports whether err should be treated as a transient SAI
// failure (spec.md §4.8 "SAI transient errors (busy, table full but
// growing) -> NeedRetry").
func IsTransient(err error) bool {
	return errors.Is(err, ErrBusy) || errors.Is(err, ErrTableFull)
}

// Notification is an asynchronous event demultiplexed to handlers by the
// dispatcher (spec.md §4.3 "SAI port state, FDB, BFD, TSA").
type Notification struct {
	Kind    string // "port_state", "fdb", "bfd", "tsa"
	ObjType ObjectType
	OID     uint64
	Attrs   Attrs
}

// Client is the capability set a handler programs against. All methods
// are expected to complete in milliseconds (spec.md §4.3 "long SAI calls
// are treated as blocking but expected to complete in milliseconds");
// none may be cancelled mid-flight (spec.md §5).
type Client interface {
	Create(ctx context.Context, objType ObjectType, attrs Attrs) (uint64, error)
	Remove(ctx context.Context, objType ObjectType, oid uint64) error
	SetAttribute(ctx context.Context, objType ObjectType, oid uint64, attrs Attrs) error
	GetAttribute(ctx context.Context, objType ObjectType, oid uint64, keys []string) (Attrs, error)
	Notifications() <-chan Notification

	// WarmBoot enters SAI "warm boot" mode: hardware tables are
	// preserved and subsequent Create calls for an already-programmed
	// object become idempotent reattachments (spec.md §4.9 phase 2).
	WarmBoot(ctx context.Context) error
}
