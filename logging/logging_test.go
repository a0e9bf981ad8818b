// Copyright (C) 2020-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestNewAcceptsValidLevels(t *testing.T) {
	for _, lvl := range []string{"debug", "info", "warn", "error"} {
		log, err := New("test", lvl)
		require.NoError(t, err)
		require.NotNil(t, log)
	}
}

func TestNewRejectsInvalidLevel(t *testing.T) {
	_, err := New("test", "not-a-level")
	require.Error(t, err)
}

func TestNoOpDoesNotPanic(t *testing.T) {
	log := NewNoOp()
	log.Debug("msg", zap.String("k", "v"))
	log.Info("msg")
	log.Warn("msg", zap.Int("k", 1))
	log.Error("msg", zap.String("err", "boom"))
}

func TestWithReturnsUsableLogger(t *testing.T) {
	log := NewNoOp().With(zap.String("component", "test"))
	require.NotNil(t, log)
	log.Info("still works")
}
