// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package shutil

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedCommand is returned when a command line can't be split,
// e.g. it has an unterminated quote.
var ErrMalformedCommand = errors.New("malformed command")

func isSpace(ch byte) bool {
	switch ch {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return false
}

// Split splits a command line as written in a compilation database.
// It handles single quotes, double quotes and backslash escapes.
// No other shell syntax is interpreted: metachars such as `$` or `|`
// are kept as is.
func Split(cmdline string) ([]string, error) {
	var args []string
	var sb strings.Builder
	inarg := false
	for i := 0; i < len(cmdline); i++ {
		ch := cmdline[i]
		switch {
		case isSpace(ch):
			if inarg {
				args = append(args, sb.String())
				sb.Reset()
				inarg = false
			}
		case ch == '\\':
			i++
			if i >= len(cmdline) {
				return nil, fmt.Errorf("%w: trailing backslash in %q", ErrMalformedCommand, cmdline)
			}
			if cmdline[i] == '\n' {
				// line continuation
				continue
			}
			sb.WriteByte(cmdline[i])
			inarg = true
		case ch == '\'':
			j := strings.IndexByte(cmdline[i+1:], '\'')
			if j < 0 {
				return nil, fmt.Errorf("%w: unterminated single quote at %d in %q", ErrMalformedCommand, i, cmdline)
			}
			sb.WriteString(cmdline[i+1 : i+1+j])
			i += j + 1
			inarg = true
		case ch == '"':
			n, err := splitDoubleQuoted(&sb, cmdline[i+1:])
			if err != nil {
				return nil, fmt.Errorf("%w at %d in %q", err, i, cmdline)
			}
			i += n + 1
			inarg = true
		default:
			sb.WriteByte(ch)
			inarg = true
		}
	}
	if inarg {
		args = append(args, sb.String())
	}
	return args, nil
}

// splitDoubleQuoted writes the unescaped content of a double quoted span
// starting right after the opening quote, and returns the index of the
// closing quote in s.
func splitDoubleQuoted(sb *strings.Builder, s string) (int, error) {
	for i := 0; i < len(s); i++ {
		switch ch := s[i]; ch {
		case '"':
			return i, nil
		case '\\':
			if i+1 < len(s) {
				switch s[i+1] {
				case '"', '\\', '$', '`':
					sb.WriteByte(s[i+1])
					i++
					continue
				case '\n':
					i++
					continue
				}
			}
			sb.WriteByte(ch)
		default:
			sb.WriteByte(ch)
		}
	}
	return 0, fmt.Errorf("%w: unterminated double quote", ErrMalformedCommand)
}
