package store

import (
	"fmt"
	"os"
)

// mzNow returns the peek timestamp, or the logical clock outside a peek.
func (s *Store) mzNow() int64 {
	if ec := s.currentEval(); ec != nil {
		return int64(ec.Time)
	}
	if s.now == nil {
		return 0
	}
	return int64(s.now())
}

// mzUpper returns the upper of the object at path as seen when the peek was
// issued, or NULL when the path names no known object.
func (s *Store) mzUpper(path string) (any, error) {
	ec := s.currentEval()
	if ec == nil {
		return nil, fmt.Errorf("mz_upper(%q) is only available in queries", path)
	}
	upper, ok := ec.Uppers[path]
	if !ok {
		return nil, nil
	}
	return int64(upper), nil
}

func readFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read_file: %w", err)
	}
	return string(b), nil
}
