package tracing

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaskPII(t *testing.T) {
	assert.Equal(t, "", MaskPII(""))
	assert.Equal(t, "*", MaskPII("a"))
	assert.Equal(t, "张*", MaskPII("张三"))
	assert.Equal(t, "王*明", MaskPII("王小明"))
	assert.Equal(t, "98*******10", MaskPII("98765643210"))
	assert.Equal(t, "Not found", MaskPII("Not found"), "占位值不应被掩码")
	assert.Equal(t, "Error", MaskPII("Error"))
}

func TestSafeAttributeValue(t *testing.T) {
	assert.Equal(t, "jo************om", SafeAttributeValue("resume.email", "john@example.com", DefaultMaxLength))
	assert.Equal(t, "abc...xyz", SafeAttributeValue("chunk", "abcmmmmmmmmmmxyz", 9))
}

func TestSafePrompt(t *testing.T) {
	assert.Equal(t, "a b c", SafePrompt("  a\n  b\t c "))
}
