// Package model defines the canonical event record produced by the
// normalizers and consumed by the dispatcher.
//
// Everything here is a short-lived per-cycle value: targets reference
// their owning source through an immutable SourceRef copy, never a live
// back-pointer.
package model
