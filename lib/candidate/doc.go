// Package candidate walks a scan candidate list on behalf of one roam
// command, returning the next admissible BSS.
//
// Admission is decided in this order: a concurrency check against the fixed
// channels of other sessions, the composable Filter stack, and finally the scan
// collaborator's ShouldRoamTo callback. The cursor only moves forward, so a
// rejected candidate is never offered twice within the same command. Retry
// returns the current candidate again without moving the cursor, which is how
// a reassociation to the BSS we are already on is expressed.
package candidate
