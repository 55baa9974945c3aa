// Package chat implements the room conversation core.
//
// Rooms are append-only event logs. Everything that happens in a room is an
// immutable action record; membership, unread badges, and room metadata are
// views derived from the log plus per-occupant watermarks. The subpackages
// split the domain model, the persistence layer, the append policy, and the
// realtime transport so each can be tested in isolation.
package chat
