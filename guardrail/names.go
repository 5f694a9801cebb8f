package guardrail

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"
)

// Fake identity pools. Replacements are drawn deterministically by HMAC of
// the original value, so the same person maps to the same fake identity for
// the lifetime of the key.
var fakeFirstNames = []string{
	"Alex", "Blair", "Casey", "Devon", "Ellis", "Finley", "Gray", "Harper",
	"Indigo", "Jordan", "Kendall", "Logan", "Morgan", "Noel", "Oakley", "Parker",
	"Quinn", "Reese", "Sage", "Taylor", "Urban", "Vesper", "Winter", "Xen",
	"Yael", "Zephyr", "Arden", "Briar", "Cove", "Dale", "Emery", "Frost",
}

var fakeLastNames = []string{
	"Ashford", "Birchwood", "Caldwell", "Dunmore", "Eastley", "Fairbank",
	"Glenhaven", "Holloway", "Ironwood", "Jasperson", "Kingsley", "Larkspur",
	"Mossgrove", "Northgate", "Oakhurst", "Pembrook", "Quillfeather", "Ravenhill",
	"Stonebridge", "Thornfield", "Underhill", "Vexley", "Westmere", "Yarrow",
	"Zellwood", "Ambergate", "Blackwell", "Crestfall", "Driftwood", "Elmsworth",
}

// Dictionaries used by the name detector. Kept to common given and family
// names so that arbitrary capitalized word pairs do not trip detection.
var knownFirstNames = map[string]bool{}
var knownLastNames = map[string]bool{}

func init() {
	for _, n := range []string{
		"james", "john", "robert", "michael", "william", "david", "richard",
		"joseph", "thomas", "charles", "christopher", "daniel", "matthew",
		"anthony", "mark", "donald", "steven", "paul", "andrew", "joshua",
		"kenneth", "kevin", "brian", "george", "timothy", "ronald", "edward",
		"jason", "jeffrey", "ryan", "jacob", "gary", "nicholas", "eric",
		"mary", "patricia", "jennifer", "linda", "elizabeth", "barbara",
		"susan", "jessica", "sarah", "karen", "lisa", "nancy", "betty",
		"margaret", "sandra", "ashley", "kimberly", "emily", "donna",
		"michelle", "carol", "amanda", "dorothy", "melissa", "deborah",
		"stephanie", "rebecca", "sharon", "laura", "cynthia", "kathleen",
		"amy", "angela", "anna", "jane", "alice", "peter", "frank", "henry",
	} {
		knownFirstNames[n] = true
	}
	for _, n := range []string{
		"smith", "johnson", "williams", "brown", "jones", "garcia", "miller",
		"davis", "rodriguez", "martinez", "hernandez", "lopez", "gonzalez",
		"wilson", "anderson", "thomas", "taylor", "moore", "jackson", "martin",
		"lee", "perez", "thompson", "white", "harris", "sanchez", "clark",
		"ramirez", "lewis", "robinson", "walker", "young", "allen", "king",
		"wright", "scott", "torres", "nguyen", "hill", "flores", "green",
		"adams", "nelson", "baker", "hall", "rivera", "campbell", "mitchell",
		"carter", "roberts", "doe",
	} {
		knownLastNames[n] = true
	}
}

func (e *Engine) nameDigest(value string) []byte {
	mac := hmac.New(sha256.New, e.key[:])
	mac.Write([]byte("name"))
	mac.Write([]byte(strings.ToLower(value)))
	return mac.Sum(nil)
}

// fakeFullName returns the deterministic fake "First Last" for an original
// name.
func (e *Engine) fakeFullName(original string) string {
	h := e.nameDigest(original)
	first := fakeFirstNames[int(h[0])%len(fakeFirstNames)]
	last := fakeLastNames[int(h[1])%len(fakeLastNames)]
	return first + " " + last
}

// fakeFirstName returns the deterministic fake given name for a standalone
// first name.
func (e *Engine) fakeFirstName(original string) string {
	h := e.nameDigest(original)
	return fakeFirstNames[int(h[0])%len(fakeFirstNames)]
}

// fakeEmail returns the deterministic fake address first.lastNN@anon.com for
// an original email address.
func (e *Engine) fakeEmail(original string) string {
	h := e.nameDigest(original)
	first := strings.ToLower(fakeFirstNames[int(h[0])%len(fakeFirstNames)])
	last := strings.ToLower(fakeLastNames[int(h[1])%len(fakeLastNames)])
	nn := binary.BigEndian.Uint16(h[2:4]) % 100
	return fmt.Sprintf("%s.%s%02d@anon.com", first, last, nn)
}

// fakeIPv4 returns the deterministic fake dotted quad embedded in the IP
// envelope. Octets avoid 0 and 255 so the result always looks like a plain
// host address.
func (e *Engine) fakeIPv4(original string) string {
	h := e.nameDigest(original)
	oct := func(b byte) int { return 1 + int(b)%254 }
	return fmt.Sprintf("%d.%d.%d.%d", oct(h[0]), oct(h[1]), oct(h[2]), oct(h[3]))
}

// fakePhoneDigits returns the deterministic fake AAA-EEE-LLLL digit groups
// for a phone replacement.
func (e *Engine) fakePhoneDigits(original string) string {
	h := e.nameDigest(original)
	area := 200 + int(binary.BigEndian.Uint16(h[0:2]))%800
	exch := 200 + int(binary.BigEndian.Uint16(h[2:4]))%800
	line := int(binary.BigEndian.Uint16(h[4:6])) % 10000
	return fmt.Sprintf("%03d-%03d-%04d", area, exch, line)
}
