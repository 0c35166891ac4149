// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

package patch

import "strings"

// Pattern is a pattern of compiler flags to delete.
//
//	-mlongcalls          matches the flag "-mlongcalls" only.
//	-DNDEBUG=            matches flags starting with "-DNDEBUG=", e.g. "-DNDEBUG=1".
//	-I*                  matches flags starting with "-I", e.g. "-Ifoo".
//	-include config.h    matches "-include" followed by "config.h".
type Pattern struct {
	s      string
	prefix bool
	// value of "flag value" pattern.
	value    string
	hasValue bool
}

// ParsePattern parses s as a Pattern.
func ParsePattern(s string) Pattern {
	if flag, value, ok := strings.Cut(s, " "); ok && flag != "" {
		return Pattern{s: flag, value: value, hasValue: true}
	}
	switch {
	case len(s) > 1 && strings.HasSuffix(s, "*"):
		return Pattern{s: strings.TrimSuffix(s, "*"), prefix: true}
	case len(s) > 1 && strings.HasSuffix(s, "="):
		return Pattern{s: s, prefix: true}
	}
	return Pattern{s: s}
}

// String returns the pattern as given to ParsePattern.
func (p Pattern) String() string {
	switch {
	case p.hasValue:
		return p.s + " " + p.value
	case p.prefix && !strings.HasSuffix(p.s, "="):
		return p.s + "*"
	}
	return p.s
}

// Len returns the number of args the pattern spans.
func (p Pattern) Len() int {
	if p.hasValue {
		return 2
	}
	return 1
}

// Match reports whether the pattern matches args[i:].
func (p Pattern) Match(args []string, i int) bool {
	if i < 0 || i >= len(args) {
		return false
	}
	arg := args[i]
	if p.hasValue {
		return arg == p.s && i+1 < len(args) && args[i+1] == p.value
	}
	if p.prefix {
		return strings.HasPrefix(arg, p.s)
	}
	return arg == p.s
}

// Patterns is a list of patterns. It implements flag.Value, so a
// pattern flag can be given multiple times.
type Patterns []Pattern

func (p *Patterns) String() string {
	var ss []string
	for _, pat := range *p {
		ss = append(ss, pat.String())
	}
	return strings.Join(ss, ",")
}

// Set appends a pattern parsed from s.
func (p *Patterns) Set(s string) error {
	*p = append(*p, ParsePattern(s))
	return nil
}
