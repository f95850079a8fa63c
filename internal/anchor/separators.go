package anchor

// DefaultSeparator marks a sentence boundary inside a token stream.
const DefaultSeparator = "<sep>"

// Separators numbers the separator tokens of one reference stream 0, 1, 2, …
// in left-to-right order. Sentence k is the run of tokens between separator k
// and separator k+1.
type Separators struct {
	ids   []int
	count int
	first int
}

// NumberSeparators folds over tokens, threading the next separator id through
// the scan instead of rewriting the tokens in place.
func NumberSeparators(tokens []string, sep string) Separators {
	s := Separators{ids: make([]int, len(tokens)), first: -1}
	for i, t := range tokens {
		if t != sep {
			s.ids[i] = -1
			continue
		}
		if s.first < 0 {
			s.first = i
		}
		s.ids[i] = s.count
		s.count++
	}
	return s
}

// IsSep reports whether position i holds a separator.
func (s Separators) IsSep(i int) bool {
	return i >= 0 && i < len(s.ids) && s.ids[i] >= 0
}

// ID returns the separator number at position i, or -1.
func (s Separators) ID(i int) int {
	if i < 0 || i >= len(s.ids) {
		return -1
	}
	return s.ids[i]
}

// Count returns the number of separators.
func (s Separators) Count() int { return s.count }

// First returns the position of the first separator, or -1.
func (s Separators) First() int { return s.first }

// Delimit joins token groups into one stream opened, separated and closed by
// sep, e.g. "<sep> a b <sep> c <sep>".
func Delimit(groups [][]string, sep string) []string {
	n := 1
	for _, g := range groups {
		n += len(g) + 1
	}
	out := make([]string, 0, n)
	out = append(out, sep)
	for _, g := range groups {
		out = append(out, g...)
		out = append(out, sep)
	}
	return out
}
