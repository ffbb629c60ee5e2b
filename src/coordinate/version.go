package coordinate

import (
	"strconv"
	"strings"
)

// qualifierRank assigns the ordering rank for the well-known alphabetic
// qualifiers. Anything not listed shares the "rc" rank (above milestone,
// below snapshot) and is ordered lexically against "rc"/"cr" and other
// arbitrary qualifiers - this mirrors Maven's actual behaviour of falling back to
// string comparison for unrecognised qualifiers.
var qualifierRank = map[string]int{
	"alpha":     0,
	"a":         0,
	"beta":      1,
	"b":         1,
	"milestone": 2,
	"m":         2,
	"rc":        3,
	"cr":        3,
	"snapshot":  4,
	"":          5, // release
	"ga":        5,
	"final":     5,
	"sp":        6,
}

const unknownQualifierRank = 3 // alongside rc, below release; see qualifierRank doc.

// qualifierCanon maps every alias in qualifierRank to its canonical family
// name, so that synonyms ("ga"/"final"/the empty release qualifier, "rc"/"cr")
// compare as genuinely equal rather than falling through to a lexical
// tie-break against each other.
var qualifierCanon = map[string]string{
	"alpha":     "alpha",
	"a":         "alpha",
	"beta":      "beta",
	"b":         "beta",
	"milestone": "milestone",
	"m":         "milestone",
	"rc":        "rc",
	"cr":        "rc",
	"snapshot":  "snapshot",
	"":          "release",
	"ga":        "release",
	"final":     "release",
	"sp":        "sp",
}

// token is a single component of a version string, either numeric or a qualifier string.
type token struct {
	numeric bool
	number  int64
	word    string
}

// Version implements the Maven-subset total order here.
type Version struct {
	raw    string
	tokens []token
}

// ParseVersion tokenizes a raw version string for comparison. It never fails: any
// input, however unusual, yields a Version that can be compared.
func ParseVersion(raw string) Version {
	v := Version{raw: raw}
	for _, part := range strings.FieldsFunc(raw, isVersionSeparator) {
		if part == "" {
			continue
		}
		if n, err := strconv.ParseInt(part, 10, 64); err == nil {
			v.tokens = append(v.tokens, token{numeric: true, number: n})
		} else {
			v.tokens = append(v.tokens, token{word: strings.ToLower(part)})
		}
	}
	return v
}

func isVersionSeparator(r rune) bool {
	return r == '.' || r == '-' || r == '_' || r == '+'
}

// String returns the original, unparsed version string.
func (v Version) String() string {
	return v.raw
}

// IsSnapshot returns true if this version carries a trailing -SNAPSHOT qualifier.
func (v Version) IsSnapshot() bool {
	return strings.HasSuffix(strings.ToUpper(v.raw), "-SNAPSHOT")
}

// qualifierFamilies lists the well-known qualifier names that may carry a
// trailing numeric generation (rc1, rc2, sp1, m1, alpha2, ...), longest name
// first so a prefix match picks the most specific family.
var qualifierFamilies = []string{"milestone", "snapshot", "alpha", "final", "beta", "rc", "cr", "ga", "sp", "a", "b", "m"}

// classify resolves a qualifier word to its ordering rank, canonical family
// name and generation number. An exact match against qualifierRank wins
// outright (generation 0). Failing that, a known qualifier name followed by
// a numeral (rc1, sp2, m3, ...) ranks and groups with its family, ordered
// within the family by generation; anything else is an arbitrary qualifier
// that ranks at unknownQualifierRank and is ordered lexically against other
// unrecognised qualifiers.
func classify(word string) (rank int, canon string, generation int64, known bool) {
	if r, ok := qualifierRank[word]; ok {
		return r, qualifierCanon[word], 0, true
	}
	for _, name := range qualifierFamilies {
		suffix := strings.TrimPrefix(word, name)
		if suffix == word || suffix == "" || !isDigits(suffix) {
			continue
		}
		n, _ := strconv.ParseInt(suffix, 10, 64)
		return qualifierRank[name], qualifierCanon[name], n, true
	}
	return unknownQualifierRank, "", 0, false
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// compareToken compares two tokens in isolation: numeric tokens compare as integers;
// a numeric token is always greater than a qualifier token (0 > any qualifier, matching
// Maven's rule that an absent/implicit "0" outranks alpha/beta/etc qualifiers); two
// qualifier tokens compare first by rank, then by generation if both belong to the
// same known family, then lexically if either is an unrecognised qualifier.
func compareToken(a, b token) int {
	switch {
	case a.numeric && b.numeric:
		switch {
		case a.number < b.number:
			return -1
		case a.number > b.number:
			return 1
		default:
			return 0
		}
	case a.numeric && !b.numeric:
		return 1
	case !a.numeric && b.numeric:
		return -1
	default:
		ra, ca, na, ka := classify(a.word)
		rb, cb, nb, kb := classify(b.word)
		if ra != rb {
			if ra < rb {
				return -1
			}
			return 1
		}
		if ka && kb && ca == cb {
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			default:
				return 0
			}
		}
		return strings.Compare(a.word, b.word)
	}
}

// releaseToken is the implicit "" (release) qualifier, ranked alongside
// "ga"/"final" in qualifierRank.
var releaseToken = token{word: ""}

// paddingFor returns what a shorter version is right-padded with when
// compared at a position where counterpart is present but this version has
// run out of tokens: numeric 0 against a numeric counterpart (so "1.0" and
// "1.0.0" compare equal), or the release qualifier against a word
// counterpart (so "1.0" ranks between "1.0-rc1" and "1.0-sp1", matching
// Maven's actual qualifier order rather than letting an implicit zero
// outrank every qualifier unconditionally).
func paddingFor(counterpart token) token {
	if counterpart.numeric {
		return token{numeric: true, number: 0}
	}
	return releaseToken
}

// Compare returns -1, 0 or 1 if v is less than, equal to, or greater than other.
func (v Version) Compare(other Version) int {
	n := len(v.tokens)
	if len(other.tokens) > n {
		n = len(other.tokens)
	}
	for i := 0; i < n; i++ {
		aOK := i < len(v.tokens)
		bOK := i < len(other.tokens)
		var a, b token
		if aOK {
			a = v.tokens[i]
		}
		if bOK {
			b = other.tokens[i]
		}
		if !aOK {
			a = paddingFor(b)
		}
		if !bOK {
			b = paddingFor(a)
		}
		if c := compareToken(a, b); c != 0 {
			return c
		}
	}
	return 0
}

// LessThan returns true if v sorts strictly before other.
func (v Version) LessThan(other Version) bool {
	return v.Compare(other) < 0
}

// Equal returns true if v and other compare as equal (not necessarily string-identical;
// e.g. "1.0" and "1.0.0" are Equal).
func (v Version) Equal(other Version) bool {
	return v.Compare(other) == 0
}

// Best returns the greatest version in the list, and false if the list is empty.
func Best(versions []string) (string, bool) {
	if len(versions) == 0 {
		return "", false
	}
	best := versions[0]
	bestV := ParseVersion(best)
	for _, raw := range versions[1:] {
		v := ParseVersion(raw)
		if bestV.LessThan(v) {
			best, bestV = raw, v
		}
	}
	return best, true
}
