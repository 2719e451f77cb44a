package field

// split.go has functions to split tag strings at a comma separator but allowing for brackets, quotes, etc

import (
	"fmt"
	"strings"
)

// SplitArgs splits a string on commas and returns the resulting slice of strings.
// It ignores commas within strings, round brackets, square brackets or braces, which
// allows for "nested" structures. For example "a,b(c,d),e"  => []string{ "a", "b(c,d)", "e" }
// An error is returned if there is a problem with the input string such as unmatched brackets.
func SplitArgs(s string) ([]string, error) {
	parts, _, err := split(s, false)
	return parts, err
}

// SplitWithDesc is like SplitArgs but also allows a trailing "description" (anything after the first #
// that is not inside brackets or quotes).
// On success, it returns a list of strings, the description (if any) and a nil error.
func SplitWithDesc(s string) ([]string, string, error) {
	return split(s, true)
}

// split does a single scan of s recording the positions of the top-level commas (and the description hash
// if withDesc is true) then cuts the string at those positions.
func split(s string, withDesc bool) ([]string, string, error) {
	var round, square, brace int
	var inString bool
	commas := make([]int, 0, 4)
	desc := ""
	end := len(s)

scan:
	for i, c := range s {
		if inString {
			if c == '"' {
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '(':
			round++
		case '[':
			square++
		case '{':
			brace++
		case ')':
			if round--; round < 0 {
				return nil, "", fmt.Errorf("unmatched right bracket ')' in %q", s)
			}
		case ']':
			if square--; square < 0 {
				return nil, "", fmt.Errorf("unmatched right square bracket ']' in %q", s)
			}
		case '}':
			if brace--; brace < 0 {
				return nil, "", fmt.Errorf("unmatched right brace '}' in %q", s)
			}
		case ',':
			if round == 0 && square == 0 && brace == 0 {
				commas = append(commas, i)
			}
		case '#':
			if withDesc && round == 0 && square == 0 && brace == 0 {
				desc = s[i+1:]
				end = i
				break scan
			}
		}
	}
	switch {
	case inString:
		return nil, "", fmt.Errorf("unmatched quote (unterminated string) in %q", s)
	case round > 0:
		return nil, "", fmt.Errorf("unmatched left bracket '(' in %q", s)
	case square > 0:
		return nil, "", fmt.Errorf("unmatched left square bracket '[' in %q", s)
	case brace > 0:
		return nil, "", fmt.Errorf("unmatched left brace '{' in %q", s)
	}

	retval := make([]string, 0, len(commas)+1)
	start := 0
	for _, comma := range commas {
		retval = append(retval, strings.Trim(s[start:comma], " "))
		start = comma + 1
	}
	retval = append(retval, strings.Trim(s[start:end], " "))

	return retval, desc, nil
}
