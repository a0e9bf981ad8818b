// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package archive

import "errors"

// ErrAlreadyPrunedTo is returned by Prunable.PutSync when the target view has
// already fallen below the prune horizon. Non-fatal: callers debug-log and
// drop the write (spec.md §4.10).
var ErrAlreadyPrunedTo = errors.New("archive: already pruned to this view")

// ErrNotFound is returned by Get when no record exists at the requested
// index or key.
var ErrNotFound = errors.New("archive: not found")
