// Package sim drives the roam state machine without a radio. Engine answers
// wire requests after a configurable latency, with per-op outcome rules, and
// Runner plays YAML scenarios against a machine built on that engine and an
// in-memory scan cache.
//
// A scenario looks like:
//
//	name: recover-after-beacon-loss
//	latency: 5ms
//	bss:
//	  - {bssid: "0a:00:00:00:00:0a", ssid: lab, channel: 6, rssi: -40}
//	steps:
//	  - action: open
//	    self: "02:00:00:00:00:01"
//	  - action: connect
//	    profile: {ssid: lab, auto_reconnect: true}
//	  - action: expect
//	    event: link_up
//	  - action: indicate
//	    indication: beacon_loss
//	    peer: "0a:00:00:00:00:0a"
//	  - action: expect
//	    event: roaming_completion
//	    result: success
package sim
