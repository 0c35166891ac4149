// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package gccutil provides utilities of gcc compatible compilers.
package gccutil

import "path/filepath"

// Lang is a source language of a compile step.
type Lang int

const (
	// LangUnknown is a file that is neither C nor C++.
	LangUnknown Lang = iota
	LangC
	LangCXX
)

func (l Lang) String() string {
	switch l {
	case LangC:
		return "c"
	case LangCXX:
		return "c++"
	}
	return "unknown"
}

// ParseLang parses a language name as accepted by `-x`.
func ParseLang(s string) (Lang, bool) {
	switch s {
	case "c":
		return LangC, true
	case "c++", "cxx", "cpp":
		return LangCXX, true
	}
	return LangUnknown, false
}

// source suffixes gcc compiles as C or C++.
// Suffixes are case sensitive (`.C` is C++, `.c` is C).
var langByExt = map[string]Lang{
	".c":   LangC,
	".cc":  LangCXX,
	".cp":  LangCXX,
	".cxx": LangCXX,
	".cpp": LangCXX,
	".CPP": LangCXX,
	".c++": LangCXX,
	".C":   LangCXX,
}

// LangOf returns the language of the source file fname.
func LangOf(fname string) Lang {
	return langByExt[filepath.Ext(fname)]
}
