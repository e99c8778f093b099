// Package domain defines the core business types for the waitlist engine.
//
// Types in this package are pure value objects with no behavior, no storage
// dependencies, and no HTTP concerns. They are the shared language between
// handlers, services, and the key-value store.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No store clients, no http.Request, no context.Context in struct fields
//   - JSON tags are allowed (they define the persisted layout)
//   - Validation and normalization helpers are allowed (pure functions)
//   - Key layout constants belong here
package domain
