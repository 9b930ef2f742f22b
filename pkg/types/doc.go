// Package types defines the shared data model for burrow: records and
// their system metadata, bucket definitions and field specs, change-event
// payloads, snapshot envelopes, and the typed errors callers branch on.
//
// Records are plain map[string]any values. Four system fields are managed
// by the store:
//
//   - _version: positive integer, 1 on insert, +1 per update
//   - _createdAt: insert wall clock, milliseconds, immutable
//   - _updatedAt: last mutation wall clock, milliseconds
//   - _expiresAt: optional TTL deadline, milliseconds; an insert may
//     supply it to override the bucket TTL
//
// Errors carry named context fields (bucket, field, key, value) so callers
// use errors.As rather than parsing messages:
//
//	var dup *types.UniqueConstraintError
//	if errors.As(err, &dup) {
//		fmt.Println(dup.Field, dup.Value)
//	}
package types
