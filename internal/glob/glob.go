// Package glob implements FilenameGlobber: resolving a single
// user-supplied path into the complete ordered list of segment files
// belonging to one image.
package glob

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/sleuthkit/goewfacquire/internal/ewferr"
)

// Exister abstracts filesystem existence checks so tests can run
// without touching disk.
type Exister func(path string) bool

// Schema is the detected naming schema for a resolved suffix.
type Schema int

const (
	SchemaSingle Schema = iota
	SchemaNumeric
	SchemaSplit
	SchemaXofN
)

// candidateSuffixes is the fixed, ordered list of suffixes probed when
// the user-supplied path does not exist as given.
var candidateSuffixes = []string{
	".raw", ".dmg", ".img", ".dd",
	".000", ".001", ".00", ".01", ".0", ".1",
	"aa", "00", "aaa", "000",
}

var singleSuffixes = map[string]bool{"dd": true, "img": true, "dmg": true, "raw": true}

var xofnPattern = regexp.MustCompile(`(?i)^(\d+)(o[f]?)(\d+)$`)

// Resolve produces the ordered [P0, P1, ...] list of segment files for
// the image that p belongs to.
func Resolve(p string, exists Exister) ([]string, error) {
	first, suffix, err := resolveFirst(p, exists)
	if err != nil {
		return nil, err
	}
	schema, err := classify(suffix)
	if err != nil {
		return nil, err
	}

	result := []string{first}
	if schema == SchemaSingle {
		return result, nil
	}

	base := strings.TrimSuffix(first, suffix)

	switch schema {
	case SchemaNumeric:
		// Walk back to the lowest-numbered sibling first, so that any
		// member of the set resolves to the same ordered list.
		cur := suffix
		for n, convErr := strconv.Atoi(cur); convErr == nil && n > 0; n-- {
			prev := fmt.Sprintf("%0*d", len(cur), n-1)
			if !exists(base + prev) {
				break
			}
			cur = prev
		}
		result = []string{base + cur}
		widened := false
		for {
			next, ok := nextNumeric(cur, &widened)
			if !ok {
				break
			}
			candidate := base + next
			if !exists(candidate) {
				break
			}
			result = append(result, candidate)
			cur = next
		}
		return result, nil

	case SchemaSplit:
		cur := suffix
		for {
			b := []byte(cur)
			i := len(b) - 1
			for ; i >= 0 && b[i] == 'a'; i-- {
				b[i] = 'z'
			}
			if i < 0 {
				break
			}
			b[i]--
			if !exists(base + string(b)) {
				break
			}
			cur = string(b)
		}
		result = []string{base + cur}
		for {
			next, ok := nextSplit(cur)
			if !ok {
				break
			}
			candidate := base + next
			if !exists(candidate) {
				break
			}
			result = append(result, candidate)
			cur = next
		}
		return result, nil

	case SchemaXofN:
		m := xofnPattern.FindStringSubmatch(suffix)
		idxWidth := len(m[1])
		sep := m[2]
		total, convErr := strconv.Atoi(m[3])
		if convErr != nil {
			return nil, ewferr.Wrap(ewferr.NamingSchema, "glob.Resolve", convErr)
		}
		result = result[:0]
		for i := 1; i <= total; i++ {
			candidate := fmt.Sprintf("%s%0*d%s%d", base, idxWidth, i, sep, total)
			if !exists(candidate) {
				return nil, ewferr.New(ewferr.MissingSegments, "glob.Resolve: XofN")
			}
			result = append(result, candidate)
		}
		return result, nil
	}

	return result, nil
}

func resolveFirst(p string, exists Exister) (path string, suffix string, err error) {
	if exists(p) {
		s := trailingSuffix(p)
		return p, s, nil
	}
	for _, cand := range candidateSuffixes {
		candidatePath := p + cand
		if exists(candidatePath) {
			return candidatePath, strings.TrimPrefix(cand, "."), nil
		}
	}
	return "", "", ewferr.New(ewferr.MissingSegments, "glob.resolveFirst: no segment found")
}

// trailingSuffix extracts the classification suffix of an existing
// path: the text after the final '.', or (for dot-less schemas like
// "aa"/"000" appended directly to a basename) the maximal trailing run
// of lowercase letters or digits.
func trailingSuffix(p string) string {
	if idx := strings.LastIndex(p, "."); idx >= 0 {
		return p[idx+1:]
	}
	i := len(p)
	isDigitRun := i > 0 && p[i-1] >= '0' && p[i-1] <= '9'
	isLowerRun := i > 0 && p[i-1] >= 'a' && p[i-1] <= 'z'
	for i > 0 {
		c := p[i-1]
		if isDigitRun && c >= '0' && c <= '9' {
			i--
			continue
		}
		if isLowerRun && c >= 'a' && c <= 'z' {
			i--
			continue
		}
		break
	}
	return p[i:]
}

func classify(suffix string) (Schema, error) {
	if xofnPattern.MatchString(suffix) {
		return SchemaXofN, nil
	}
	if singleSuffixes[strings.ToLower(suffix)] {
		return SchemaSingle, nil
	}
	if isAllDigits(suffix) {
		return SchemaNumeric, nil
	}
	if isAllLowerLetters(suffix) {
		return SchemaSplit, nil
	}
	return 0, ewferr.New(ewferr.NamingSchema, "glob.classify: unrecognized suffix "+suffix)
}

func isAllDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

func isAllLowerLetters(s string) bool {
	if s == "" {
		return false
	}
	for _, c := range s {
		if c < 'a' || c > 'z' {
			return false
		}
	}
	return true
}

// nextNumeric increments a fixed-width decimal suffix, widening by one
// digit exactly once on overflow.
func nextNumeric(cur string, widened *bool) (string, bool) {
	n, err := strconv.Atoi(cur)
	if err != nil {
		return "", false
	}
	n++
	width := len(cur)
	s := strconv.Itoa(n)
	for len(s) < width {
		s = "0" + s
	}
	if len(s) > width {
		if *widened {
			return "", false
		}
		*widened = true
	}
	return s, true
}

// nextSplit increments a fixed-width base-26 lowercase suffix
// ("aa"->"ab"->...->"az"->"ba"). It never widens; an overflow past the
// fixed width ends the sequence.
func nextSplit(cur string) (string, bool) {
	b := []byte(cur)
	for i := len(b) - 1; i >= 0; i-- {
		if b[i] < 'z' {
			b[i]++
			return string(b), true
		}
		b[i] = 'a'
		if i == 0 {
			return "", false
		}
	}
	return "", false
}
