//go:build !race

package multimap

const raceEnabled = false
