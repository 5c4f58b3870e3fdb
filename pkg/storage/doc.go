// Package storage defines the entity store used by the data request service.
//
// The store persists teams, memberships, projects, charts, datasets and data
// requests. Ownership is a tree (data request -> dataset -> chart -> project ->
// team) and the access chain relies on every record having exactly one parent.
//
// Capabilities are split into small interfaces so that each consumer depends only
// on what it reads or writes:
//
//   - OwnershipReader: GetProject, GetChart, GetDataset
//   - MembershipReader: GetTeamMember
//   - DataRequestReader / DataRequestWriter: data request CRUD and result persistence
//   - DatasetWriter: dataset removal, cascading to its data requests
//   - HealthChecker: backend health
//
// Implementations:
//
//   - storage/memory: in-process maps, used for local runs and tests
//   - storage/postgres: database/sql with lib/pq
//   - storage/cache: redis + LRU read-through wrapper for ownership lookups
//
// Every implementation returns errors that match ErrNotFound (errors.Is) for
// missing records. Writes are last-write-wins; there is no version token.
package storage
