// Copyright 2025 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package cdb reads and writes JSON compilation databases
// (compile_commands.json).
//
// https://clang.llvm.org/docs/JSONCompilationDatabase.html
package cdb

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"go.chromium.org/infra/build/cdbpatch/toolsupport/shutil"
)

// Kind is a representation of a compile command in an entry.
type Kind int

const (
	// KindCommand is a single shell-escaped string in "command".
	KindCommand Kind = iota
	// KindArguments is a list of args in "arguments".
	KindArguments
)

func (k Kind) String() string {
	switch k {
	case KindCommand:
		return "command"
	case KindArguments:
		return "arguments"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Entry is an entry of compilation database.
type Entry struct {
	Directory string
	File      string
	Output    string

	// Kind tells which of Command or Arguments holds the compile
	// command. The other one is empty.
	Kind      Kind
	Command   string
	Arguments []string

	// keys in the order of the input, including known keys.
	keys []string
	// members not known by Entry, keyed by name.
	extra map[string]json.RawMessage
}

// Args returns the compile command as args.
func (e *Entry) Args() ([]string, error) {
	if e.Kind == KindArguments {
		return append([]string(nil), e.Arguments...), nil
	}
	return shutil.Split(e.Command)
}

// SetArgs sets the compile command in the representation of e.Kind.
func (e *Entry) SetArgs(args []string) {
	if e.Kind == KindArguments {
		e.Arguments = append([]string(nil), args...)
		return
	}
	e.Command = shutil.Join(args)
}

// Clone returns a deep copy of e.
func (e *Entry) Clone() Entry {
	c := *e
	c.Arguments = append([]string(nil), e.Arguments...)
	c.keys = append([]string(nil), e.keys...)
	if e.extra != nil {
		c.extra = make(map[string]json.RawMessage, len(e.extra))
		for k, v := range e.extra {
			c.extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return c
}

// UnmarshalJSON decodes an entry, keeping unknown members and member order.
func (e *Entry) UnmarshalJSON(buf []byte) error {
	dec := json.NewDecoder(bytes.NewReader(buf))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("entry is not an object: %s", buf)
	}
	*e = Entry{}
	hasCommand := false
	hasArguments := false
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key := tok.(string)
		var raw json.RawMessage
		err = dec.Decode(&raw)
		if err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
		if slices.Contains(e.keys, key) {
			return fmt.Errorf("duplicate member %q", key)
		}
		e.keys = append(e.keys, key)
		switch key {
		case "directory":
			err = json.Unmarshal(raw, &e.Directory)
		case "file":
			err = json.Unmarshal(raw, &e.File)
		case "output":
			err = json.Unmarshal(raw, &e.Output)
		case "command":
			hasCommand = true
			err = json.Unmarshal(raw, &e.Command)
		case "arguments":
			hasArguments = true
			err = json.Unmarshal(raw, &e.Arguments)
		default:
			if e.extra == nil {
				e.extra = make(map[string]json.RawMessage)
			}
			e.extra[key] = raw
		}
		if err != nil {
			return fmt.Errorf("member %q: %w", key, err)
		}
	}
	switch {
	case hasCommand && hasArguments:
		return errors.New("both command and arguments are set")
	case hasArguments:
		e.Kind = KindArguments
	case hasCommand:
		e.Kind = KindCommand
	default:
		return errors.New("neither command nor arguments is set")
	}
	return nil
}

// MarshalJSON encodes an entry in the member order it was decoded with.
// The compile command is written in the same representation as decoded.
func (e Entry) MarshalJSON() ([]byte, error) {
	keys := e.keys
	if len(keys) == 0 {
		keys = []string{"directory", e.Kind.String(), "file"}
		if e.Output != "" {
			keys = append(keys, "output")
		}
	}
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, key := range keys {
		kb, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		var vb []byte
		switch key {
		case "directory":
			vb, err = marshal(e.Directory)
		case "file":
			vb, err = marshal(e.File)
		case "output":
			vb, err = marshal(e.Output)
		case "command":
			vb, err = marshal(e.Command)
		case "arguments":
			args := e.Arguments
			if args == nil {
				args = []string{}
			}
			vb, err = marshal(args)
		default:
			// verbatim. json.Marshal would compact it.
			vb = e.extra[key]
		}
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", key, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(vb)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// marshal is json.Marshal without HTML escaping, so that commands
// such as `-DX=<a&b>` stay readable.
func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	err := enc.Encode(v)
	if err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

// Parse parses a compilation database.
func Parse(buf []byte) ([]Entry, error) {
	var raws []json.RawMessage
	err := json.Unmarshal(buf, &raws)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, len(raws))
	for i, raw := range raws {
		err := json.Unmarshal(raw, &entries[i])
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
	}
	return entries, nil
}

// Load loads a compilation database from fname.
func Load(fname string) ([]Entry, error) {
	buf, err := os.ReadFile(fname)
	if err != nil {
		return nil, err
	}
	entries, err := Parse(buf)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", fname, err)
	}
	return entries, nil
}

// Write writes entries as a compilation database, one entry per line.
func Write(w io.Writer, entries []Entry) error {
	var buf bytes.Buffer
	buf.WriteString("[")
	for i := range entries {
		b, err := entries[i].MarshalJSON()
		if err != nil {
			return fmt.Errorf("entry %d: %w", i, err)
		}
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteString("\n  ")
		buf.Write(b)
	}
	buf.WriteString("\n]\n")
	_, err := w.Write(buf.Bytes())
	return err
}

// Save saves entries to fname.
// It writes to a temporary file first, so fname may be the file the
// entries were loaded from.
func Save(fname string, entries []Entry) (err error) {
	var buf bytes.Buffer
	err = Write(&buf, entries)
	if err != nil {
		return err
	}
	tmpname := fname + ".tmp"
	err = os.WriteFile(tmpname, buf.Bytes(), 0644)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			os.Remove(tmpname)
		}
	}()
	return os.Rename(tmpname, fname)
}
