// Package planner recommends pipeline split points for a model profiled on a
// single device, so that the split model fits on several devices at once.
//
// # Reading Guide
//
// Start with these three files to understand the pipeline:
//   - analysis.go: the immutable lookup tables shared by every computation
//   - operation_list.go: grouping profiled steps into operations and layers
//   - greedy_solver.go: packing operations into per-device stages
//
// # Data Model
//
// The package works at three granularities. A step is one scheduled action
// from the profile, with a signed memory delta per resource unit. An
// Operation is the set of steps that share a debug-context identity; the
// same Operation may be entered many times while walking the profile, so an
// OperationList references it through lightweight NamedOperation handles
// rather than owning it in place. A Stage is a set of operations assigned to
// one device; its peak memory deduplicates steps shared between operations
// so nothing is billed twice.
//
// All types are deterministic: the same profile and settings always yield
// the same operation list, stages, and diagnostics.
package planner
