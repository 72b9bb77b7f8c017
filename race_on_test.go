//go:build race

package multimap

// Under the race detector, stress tests run with fewer entries.
const raceEnabled = true
