// Package store provides persistent telemetry.Store backends and the seed
// data of the hospital fleet.
package store
