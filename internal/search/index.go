// Package search ranks guests for the admin directory lookup.
//
// Guest names and slugs are folded (lower case, accents stripped) and split
// into word tokens. A query is scored against each guest with Jaccard
// similarity, where a query token also counts when it is a long-enough
// prefix of a guest token. A query equal to a guest's slug always ranks that
// guest first with score 1. Indexes are immutable once built and safe for
// concurrent use; the package does no logging.
package search

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Entry is one searchable guest.
type Entry struct {
	Slug      string
	GuestName string
}

// Result is a ranked guest.
type Result struct {
	Slug      string  `json:"slug"`
	GuestName string  `json:"guestName"`
	Score     float64 `json:"score"`
}

// Index answers ranked guest lookups.
type Index interface {
	TopK(query string, k int) []Result
	Len() int
}

// DefaultK is used when TopK is called with k <= 0.
const DefaultK = 10

type settings struct {
	stop      tokenSet
	maxDocs   int
	minPrefix int
}

// Option tunes NewIndex.
type Option func(*settings)

// WithStopwords ignores the given words (honorifics, "y", "and") in names and
// queries. Words are folded like everything else.
func WithStopwords(words []string) Option {
	return func(s *settings) {
		set := tokenSet{}
		for _, w := range words {
			if w = Fold(strings.TrimSpace(w)); w != "" {
				set[w] = struct{}{}
			}
		}
		if len(set) > 0 {
			s.stop = set
		}
	}
}

// WithMaxDocs indexes at most n guests. n <= 0 is ignored.
func WithMaxDocs(n int) Option {
	return func(s *settings) {
		if n > 0 {
			s.maxDocs = n
		}
	}
}

// WithMinPrefixLen sets how many runes a query token needs before it may
// match as a prefix. Zero turns prefix matching off; negatives are ignored.
func WithMinPrefixLen(n int) Option {
	return func(s *settings) {
		if n >= 0 {
			s.minPrefix = n
		}
	}
}

type tokenSet map[string]struct{}

type guest struct {
	Entry
	slug   string
	tokens tokenSet
}

type guestIndex struct {
	settings
	guests []guest
}

// NewIndex builds an index over entries. Guests with no usable token are
// left out.
func NewIndex(entries []Entry, opts ...Option) Index {
	s := settings{minPrefix: 2}
	for _, opt := range opts {
		opt(&s)
	}
	idx := &guestIndex{settings: s, guests: make([]guest, 0, len(entries))}
	for _, e := range entries {
		if s.maxDocs > 0 && len(idx.guests) == s.maxDocs {
			break
		}
		toks := tokenize(e.GuestName+" "+e.Slug, s.stop)
		if len(toks) == 0 {
			continue
		}
		idx.guests = append(idx.guests, guest{Entry: e, slug: Fold(e.Slug), tokens: toks})
	}
	return idx
}

func (x *guestIndex) Len() int { return len(x.guests) }

// TopK returns at most k guests ordered by score, then slug.
func (x *guestIndex) TopK(query string, k int) []Result {
	query = strings.TrimSpace(query)
	if query == "" || len(x.guests) == 0 {
		return nil
	}
	if k <= 0 {
		k = DefaultK
	}
	folded := Fold(query)
	q := tokenize(query, x.stop)

	var out []Result
	for _, g := range x.guests {
		score := 0.0
		if g.slug != "" && g.slug == folded {
			score = 1
		} else if len(q) > 0 {
			if hit := x.matches(q, g.tokens); hit > 0 {
				score = float64(hit) / float64(len(q)+len(g.tokens)-hit)
			}
		}
		if score > 0 {
			out = append(out, Result{Slug: g.Slug, GuestName: g.GuestName, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score == out[j].Score {
			return out[i].Slug < out[j].Slug
		}
		return out[i].Score > out[j].Score
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// matches counts query tokens found in toks, exactly or as a prefix.
func (x *guestIndex) matches(q, toks tokenSet) int {
	n := 0
	for qt := range q {
		if _, ok := toks[qt]; ok {
			n++
			continue
		}
		if x.minPrefix == 0 || len([]rune(qt)) < x.minPrefix {
			continue
		}
		for t := range toks {
			if strings.HasPrefix(t, qt) {
				n++
				break
			}
		}
	}
	return n
}

var wordRE = regexp.MustCompile(`[\p{L}\p{M}\p{N}]+`)

// Fold lower-cases s and strips combining marks: "Zoë" folds to "zoe".
func Fold(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if out, _, err := transform.String(t, s); err == nil {
		s = out
	}
	return strings.ToLower(s)
}

func tokenize(s string, stop tokenSet) tokenSet {
	var set tokenSet
	for _, w := range wordRE.FindAllString(Fold(s), -1) {
		if _, skip := stop[w]; skip {
			continue
		}
		if set == nil {
			set = tokenSet{}
		}
		set[w] = struct{}{}
	}
	return set
}
