package cache

import "fmt"

// GenerateKeyWithParams creates a cache key from a prefix and parameters.
func GenerateKeyWithParams(prefix string, params ...interface{}) string {
	key := prefix
	for _, param := range params {
		key = fmt.Sprintf("%s:%v", key, param)
	}
	return key
}

// BuildPattern creates a pattern matching every key under a prefix.
func BuildPattern(prefix string) string {
	return fmt.Sprintf("%s*", prefix)
}
