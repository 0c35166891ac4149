// Copyright 2024 The Chromium Authors
// Use of this source code is governed by a BSD-style license that can be
// found in the LICENSE file.

// Package runtimex provides runtime information missing in the standard
// runtime package.
package runtimex

import "runtime"

var ncpu = numCPU()

func numCPU() int {
	if n := activeProcessorCount(); n > 0 {
		return n
	}
	return runtime.NumCPU()
}

// NumCPU returns the number of logical CPUs usable by the current process.
// On Windows, runtime.NumCPU only counts a single processor group (up to 64),
// so it counts active processors of all groups instead.
func NumCPU() int {
	return ncpu
}
