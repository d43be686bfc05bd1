package categorize

import (
	"regexp"
	"sort"
	"strings"

	"nfce/internal"
	"nfce/internal/util"
)

const (
	StageExact     = "exact"
	StageTwoWord   = "two-word"
	StageFirstWord = "first-word"
	StagePattern   = "pattern"
	StageNoSpace   = "no-space"
	StageNone      = "none"
)

// minNoSpacePrefix is the shortest glued key accepted as a prefix match.
const minNoSpacePrefix = 3

type Rule struct {
	Pattern  *regexp.Regexp
	Category internal.Category
}

// Index is an immutable snapshot of the lookup tables. It is built once per
// seed and published as a whole.
type Index struct {
	Exact     map[string]internal.Category
	FirstWord map[string]internal.Category
	NoSpace   map[string]internal.Category
	Patterns  []Rule
	exactKeys []string
}

type stage struct {
	name  string
	match func(idx *Index, key string) (internal.Category, bool)
}

// stages run in precedence order; the first hit wins.
var stages = []stage{
	{StageExact, (*Index).matchExact},
	{StageTwoWord, (*Index).matchTwoWord},
	{StageFirstWord, (*Index).matchFirstWord},
	{StagePattern, (*Index).matchPattern},
	{StageNoSpace, (*Index).matchNoSpace},
}

// BuildIndex turns a seed dictionary (raw product name to legacy label)
// into lookup tables. Seed keys are visited in sorted order so the result
// does not depend on map iteration.
func BuildIndex(seed map[string]string) *Index {
	idx := &Index{
		Exact:     map[string]internal.Category{},
		FirstWord: map[string]internal.Category{},
		NoSpace:   map[string]internal.Category{},
	}

	firstOverride := make(map[string]internal.Category, len(firstWordOverrides))
	for _, r := range firstWordOverrides {
		firstOverride[r.word] = r.category
	}

	names := make([]string, 0, len(seed))
	for name := range seed {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		key := util.Normalize(name)
		if key == "" {
			continue
		}
		cat := canonCategory(seed[name])
		first := strings.Fields(key)[0]
		if c, ok := firstOverride[first]; ok {
			cat = c
		}
		idx.put(key, cat)
	}

	for raw, cat := range exactOverrides {
		if key := util.Normalize(raw); key != "" {
			idx.put(key, cat)
		}
	}

	idx.buildFirstWord(firstOverride)
	idx.buildPatterns()

	idx.exactKeys = sortedKeys(idx.Exact)
	return idx
}

func (idx *Index) put(key string, cat internal.Category) {
	idx.Exact[key] = cat
	idx.NoSpace[strings.ReplaceAll(key, " ", "")] = cat
}

func (idx *Index) buildFirstWord(overrides map[string]internal.Category) {
	for _, key := range sortedKeys(idx.Exact) {
		cat := idx.Exact[key]
		if cat == internal.CategoryUncategorized {
			continue
		}
		first := strings.Fields(key)[0]
		if !usableWord(first) {
			continue
		}
		if _, seen := idx.FirstWord[first]; !seen {
			idx.FirstWord[first] = cat
		}
	}
	for w, cat := range overrides {
		idx.FirstWord[w] = cat
	}
}

func (idx *Index) buildPatterns() {
	for _, r := range keywordRules {
		key := util.Normalize(r.word)
		if key == "" {
			continue
		}
		idx.addWordRule(key, r.category)
		if glued := strings.ReplaceAll(key, " ", ""); glued != key {
			idx.Patterns = append(idx.Patterns, Rule{regexp.MustCompile(regexp.QuoteMeta(glued)), r.category})
		}
	}
	for _, r := range patternRules {
		idx.Patterns = append(idx.Patterns, Rule{regexp.MustCompile(r.expr), r.category})
	}
	for _, w := range sortedKeys(idx.FirstWord) {
		if cat := idx.FirstWord[w]; cat != internal.CategoryUncategorized {
			idx.addWordRule(w, cat)
		}
	}
}

func (idx *Index) addWordRule(word string, cat internal.Category) {
	idx.Patterns = append(idx.Patterns, Rule{regexp.MustCompile(`\b` + regexp.QuoteMeta(word) + `\b`), cat})
}

func usableWord(w string) bool {
	if len(w) < 2 || stopWords[w] {
		return false
	}
	for _, r := range w {
		if r < '0' || r > '9' {
			return true
		}
	}
	return false
}

// Lookup resolves a raw description and reports the stage that matched.
func (idx *Index) Lookup(raw string) (internal.Category, string) {
	key := util.Normalize(raw)
	if key == "" {
		return internal.CategoryUncategorized, StageNone
	}
	for _, s := range stages {
		if cat, ok := s.match(idx, key); ok {
			return cat, s.name
		}
	}
	return internal.CategoryUncategorized, StageNone
}

func (idx *Index) matchExact(key string) (internal.Category, bool) {
	cat, ok := idx.Exact[key]
	return cat, ok
}

// matchTwoWord looks up the first two words, then any seed key that starts
// with them; the lexicographically smallest such key wins.
func (idx *Index) matchTwoWord(key string) (internal.Category, bool) {
	words := strings.Fields(key)
	if len(words) < 2 {
		return "", false
	}
	prefix := words[0] + " " + words[1]
	if cat, ok := idx.Exact[prefix]; ok {
		return cat, true
	}
	probe := prefix + " "
	i := sort.SearchStrings(idx.exactKeys, probe)
	if i < len(idx.exactKeys) && strings.HasPrefix(idx.exactKeys[i], probe) {
		return idx.Exact[idx.exactKeys[i]], true
	}
	return "", false
}

func (idx *Index) matchFirstWord(key string) (internal.Category, bool) {
	first := strings.Fields(key)[0]
	cat, ok := idx.FirstWord[first]
	return cat, ok
}

func (idx *Index) matchPattern(key string) (internal.Category, bool) {
	glued := strings.ReplaceAll(key, " ", "")
	for _, r := range idx.Patterns {
		if r.Pattern.MatchString(key) || r.Pattern.MatchString(glued) {
			return r.Category, true
		}
	}
	return "", false
}

// matchNoSpace compares glued forms: exact first, then the longest known key
// the input starts with.
func (idx *Index) matchNoSpace(key string) (internal.Category, bool) {
	glued := strings.ReplaceAll(key, " ", "")
	if cat, ok := idx.NoSpace[glued]; ok {
		return cat, true
	}
	for n := len(glued) - 1; n >= minNoSpacePrefix; n-- {
		if cat, ok := idx.NoSpace[glued[:n]]; ok {
			return cat, true
		}
	}
	return "", false
}

func sortedKeys(m map[string]internal.Category) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
