package extract

import (
	"regexp"
	"sync"
)

// Template validation patterns repeat across thousands of messages; compile
// each once.
var regexCache sync.Map // pattern string -> *regexp.Regexp

func compileCached(pattern string) (*regexp.Regexp, error) {
	if cached, ok := regexCache.Load(pattern); ok {
		return cached.(*regexp.Regexp), nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	regexCache.Store(pattern, re)
	return re, nil
}
