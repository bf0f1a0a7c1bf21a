package logger

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLogger_WithKeepsWrapper(t *testing.T) {
	var buf bytes.Buffer
	base := NewWithWriter(&buf, 0)

	var child *Logger = base.Component("store").With("backend", "file")
	child.Info("opened")

	out := buf.String()
	assert.Contains(t, out, "component=store")
	assert.Contains(t, out, "backend=file")
	assert.Contains(t, out, "msg=opened")
}

func TestLogger_Level(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&buf, 4)

	l.Info("hidden")
	l.Warn("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}
