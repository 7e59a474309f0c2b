package shard

import "fmt"

// DuplicateShardError is returned when a shard id is registered twice.
// Registration conflicts are configuration errors and are never retried.
type DuplicateShardError struct {
	ID ID
}

func (e *DuplicateShardError) Error() string {
	return fmt.Sprintf("shard %d is already registered", e.ID)
}

// UnknownShardError is returned when a shard id is not in the registry.
type UnknownShardError struct {
	ID ID
}

func (e *UnknownShardError) Error() string {
	return fmt.Sprintf("unknown shard %d", e.ID)
}

// InvalidLocalIDError is returned when a local id cannot be encoded into a
// global id: it is zero, negative, or too wide for the configured id width.
type InvalidLocalIDError struct {
	LocalID int64
	Width   int
}

func (e *InvalidLocalIDError) Error() string {
	return fmt.Sprintf("local id %d does not fit in %d digits", e.LocalID, e.Width)
}

// MalformedGlobalIDError is returned when a global id decodes to a shard
// that is not registered. It usually means a raw id crossed a shard
// boundary without translation; the value is surfaced, never coerced.
type MalformedGlobalIDError struct {
	GlobalID int64
	ShardID  ID
}

func (e *MalformedGlobalIDError) Error() string {
	return fmt.Sprintf("global id %d decodes to unregistered shard %d", e.GlobalID, e.ShardID)
}
