// Package model provides the domain types shared by the checkout packages.
//
// This package contains type definitions only. All other internal packages
// import model; model imports nothing internal.
//
// Key design constraints:
//   - Money is int64 minor units, never float
//   - Confidence scores are float64 in [0, 1]
//   - All JSON tags use snake_case
//   - Timestamps are UTC and serialized as RFC 3339
package model
