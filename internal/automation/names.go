package automation

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
	"path/filepath"
)

var (
	fallbackFirstNames = []string{"John", "Jane", "Alex", "Sam", "Chris"}
	fallbackLastNames  = []string{"Smith", "Johnson", "Williams", "Brown", "Jones"}
)

// LoadNameLists reads first-names.json and last-names.json from dir. A
// missing or malformed list is replaced by a small built-in one.
func LoadNameLists(dir string) (first, last []string) {
	first = readNameList(filepath.Join(dir, "first-names.json"))
	if len(first) == 0 {
		first = fallbackFirstNames
	}
	last = readNameList(filepath.Join(dir, "last-names.json"))
	if len(last) == 0 {
		last = fallbackLastNames
	}
	return first, last
}

func readNameList(path string) []string {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil
	}
	return names
}

// NameGenerator produces card nicknames. With a prefix the nickname is
// "<prefix> <n>", otherwise a random first and last name.
type NameGenerator struct {
	intn   func(int) int
	prefix string
	first  []string
	last   []string
}

// NewNameGenerator builds a generator. A nil intn uses math/rand/v2.
func NewNameGenerator(first, last []string, prefix string, intn func(int) int) *NameGenerator {
	if intn == nil {
		intn = rand.IntN
	}
	if len(first) == 0 {
		first = fallbackFirstNames
	}
	if len(last) == 0 {
		last = fallbackLastNames
	}
	return &NameGenerator{intn: intn, prefix: prefix, first: first, last: last}
}

// Next returns the nickname for the card at zero-based index i.
func (g *NameGenerator) Next(i int) string {
	if g.prefix != "" {
		return fmt.Sprintf("%s %d", g.prefix, i+1)
	}
	return g.first[g.intn(len(g.first))] + " " + g.last[g.intn(len(g.last))]
}
