package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resume-analyzer/internal/processor"
)

func TestParseOptions(t *testing.T) {
	all, err := ParseOptions("  ")
	require.NoError(t, err)
	assert.Equal(t, processor.FieldNames(), all)

	got, err := ParseOptions(`["Skills", "summary"]`)
	require.NoError(t, err)
	assert.Equal(t, []string{"Skills", "summary"}, got)

	empty, err := ParseOptions(`[]`)
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = ParseOptions(`{"skills": true}`)
	assert.Error(t, err)

	_, err = ParseOptions(`["skills", "photo"]`)
	assert.ErrorContains(t, err, "photo")
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusFor(processor.NewReadError("a.doc", processor.ErrUnsupportedFormat)))
	assert.Equal(t, http.StatusUnprocessableEntity, StatusFor(processor.NewReadError("a.pdf", errors.New("bad xref"))))
	assert.Equal(t, http.StatusGatewayTimeout, StatusFor(fmt.Errorf("analyze: %w", context.DeadlineExceeded)))
	assert.Equal(t, http.StatusInternalServerError, StatusFor(errors.New("boom")))
}
