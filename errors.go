// Package datahub ingests GTFS static schedules and GTFS-Realtime
// feeds from configured transit data providers, normalizes them into
// a relational store, and answers next-arrival and next-stop queries
// by correlating the two.
package datahub

import "errors"

var (
	// ErrInvalidRequest marks a query missing a required
	// parameter. Surfaced to the caller, never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrNotFound marks a referenced entity (stop, trip
	// descriptor) absent from the current feed or realtime
	// snapshot.
	ErrNotFound = errors.New("not found")

	// ErrNoCurrentFeed means the provider has no promoted feed to
	// query against.
	ErrNoCurrentFeed = errors.New("no current feed")
)
