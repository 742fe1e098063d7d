// Package events defines the events emitted on the typed event buses.
//
// Available event types:
//   - StatusChangeEvent: a hospital moved between congestion tiers
//   - DispatchEvent: a dispatch plan was produced
package events
