package gcode

import (
	"strconv"
)

// isSpace mirrors the C locale's isspace() used by the reference parser:
// space, tab, newline, vertical tab, form feed, carriage return.
func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\v', '\f', '\r':
		return true
	}
	return false
}

// gobbleWhitespace returns the position of the first non-whitespace byte at
// or after start, or len(line) if none remains.
func gobbleWhitespace(line []byte, start int) int {
	i := start
	for i < len(line) && isSpace(line[i]) {
		i++
	}
	return i
}

// PrefixMatches checks whether line[start:] begins with literal. If it does,
// it returns the position immediately after the prefix and true; otherwise
// it returns start unchanged and false. It never reads past len(line).
func PrefixMatches(line []byte, start int, literal string) (int, bool) {
	if len(line)-start < len(literal) {
		return start, false
	}
	if string(line[start:start+len(literal)]) != literal {
		return start, false
	}
	return start + len(literal), true
}

// ParseInt consumes a signed base-10 integer starting at line[start:].
// Success requires both that the digits form a valid integer and that the
// byte immediately following them is whitespace (or the input simply ends at
// the provided limit); otherwise it fails without advancing, matching the
// "gcodes are terminated by whitespace" contract in spec.md §4.1.
func ParseInt(line []byte, start int) (value int64, next int, ok bool) {
	end := start
	if end < len(line) && (line[end] == '+' || line[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(line) && line[end] >= '0' && line[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, start, false
	}
	if end < len(line) && !isSpace(line[end]) {
		// Something non-numeric and non-whitespace directly follows -
		// malformed token, e.g. "3abc".
		return 0, start, false
	}
	v, err := strconv.ParseInt(string(line[start:end]), 10, 64)
	if err != nil {
		return 0, start, false
	}
	return v, end, true
}

// ParseUint is ParseInt's unsigned counterpart; a negative value fails the parse.
func ParseUint(line []byte, start int) (value uint64, next int, ok bool) {
	v, next, ok := ParseInt(line, start)
	if !ok || v < 0 {
		return 0, start, false
	}
	return uint64(v), next, true
}

// floatWorkingBufSize is the size of the stack-shaped scratch buffer used to
// null-terminate a candidate float token before handing it to the numeric
// parser. Preserved from the reference implementation's sscanf-based parser
// (spec.md §9 open question): any replacement must still reject a decimal
// token that is not followed by whitespace, which is what prevents a
// malformed integer from being silently accepted mid-line as a float.
const floatWorkingBufSize = 32

// ParseFloat consumes a floating point value starting at line[start:], using
// the same "must be followed by whitespace" contract as ParseInt.
func ParseFloat(line []byte, start int) (value float64, next int, ok bool) {
	end := start
	limit := len(line)
	if limit-start > floatWorkingBufSize {
		limit = start + floatWorkingBufSize
	}
	if end < limit && (line[end] == '+' || line[end] == '-') {
		end++
	}
	sawDigit := false
	for end < limit && line[end] >= '0' && line[end] <= '9' {
		end++
		sawDigit = true
	}
	if end < limit && line[end] == '.' {
		end++
		for end < limit && line[end] >= '0' && line[end] <= '9' {
			end++
			sawDigit = true
		}
	}
	if !sawDigit {
		return 0, start, false
	}
	if end < len(line) && !isSpace(line[end]) {
		return 0, start, false
	}
	v, err := strconv.ParseFloat(string(line[start:end]), 64)
	if err != nil {
		return 0, start, false
	}
	return v, end, true
}
