package common

import (
	"regexp"
	"sync"
)

// RegexCache memoizes compiled expressions. Invalid expressions are cached
// too so repeated lookups return the same error without recompiling.
type RegexCache struct {
	entries map[string]regexEntry
	mu      sync.RWMutex
}

type regexEntry struct {
	re  *regexp.Regexp
	err error
}

// NewRegexCache creates an empty cache.
func NewRegexCache() *RegexCache {
	return &RegexCache{entries: make(map[string]regexEntry)}
}

// Compile returns the compiled form of pattern.
func (c *RegexCache) Compile(pattern string) (*regexp.Regexp, error) {
	c.mu.RLock()
	e, ok := c.entries[pattern]
	c.mu.RUnlock()
	if ok {
		return e.re, e.err
	}

	re, err := regexp.Compile(pattern)

	c.mu.Lock()
	c.entries[pattern] = regexEntry{re: re, err: err}
	c.mu.Unlock()

	return re, err
}

// MatchRegex compiles and matches a regex pattern against a string.
// Returns an error if the pattern is invalid.
func MatchRegex(pattern, text string) (bool, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return false, err
	}
	return re.MatchString(text), nil
}
