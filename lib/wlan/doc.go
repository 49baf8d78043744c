// Package wlan holds the small vocabulary shared by every layer of the station
// orchestrator: session identifiers, BSSIDs, BSS types, bands, roam reasons and
// the result/error taxonomy reported to notification sinks.
//
// Errors returned anywhere in the module wrap one of the sentinels declared here,
// so callers can use errors.Is and ResultOf to classify a failure regardless of
// how much context was added on the way up.
package wlan
