// Package names generates and normalises public domain names and keys.
package names

import (
	"math/rand/v2"
	"strconv"
	"strings"
)

var adjectives = []string{
	"amber", "brave", "calm", "dusty", "eager", "fancy", "gentle", "happy",
	"icy", "jolly", "kind", "lucky", "mellow", "nimble", "odd", "proud",
	"quiet", "rapid", "shy", "tidy", "urban", "vivid", "witty", "young",
	"zesty",
}

var nouns = []string{
	"apple", "badger", "cactus", "dune", "ember", "falcon", "garden", "harbor",
	"island", "jungle", "kettle", "lantern", "meadow", "nectar", "otter",
	"pepper", "quartz", "river", "saddle", "tiger", "umbrella", "valley",
	"walnut", "yarrow", "zephyr",
}

const keyAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// KeyLength is the length of generated keys.
const KeyLength = 6

// domainSuffixes bounds the number appended to each word pair.
const domainSuffixes = 1000

// Domain returns a random "adjective-noun-N" name.
func Domain() string {
	return adjectives[rand.IntN(len(adjectives))] + "-" +
		nouns[rand.IntN(len(nouns))] + "-" +
		strconv.Itoa(rand.IntN(domainSuffixes))
}

// Key returns a random lower-case alphanumeric key.
func Key() string {
	b := make([]byte, KeyLength)
	for i := range b {
		b[i] = keyAlphabet[rand.IntN(len(keyAlphabet))]
	}
	return string(b)
}

// NormalizeDomain trims, lower-cases and replaces spaces with dashes.
func NormalizeDomain(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.ReplaceAll(s, " ", "-")
}
