// Package scan defines the scan collaborator consumed by the roam state
// machine and provides Cache, an in-memory implementation fed by a scan
// source, by the simulator, or by nl80211 BSS records from
// github.com/mdlayher/wifi.
//
// Candidate lists are read-only snapshots. Every list handed out by
// GetCandidates must be returned with ReleaseCandidates exactly once.
package scan
