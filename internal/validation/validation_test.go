package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainerrors "github.com/shelfmark/shelfmark-server/internal/errors"
)

type sampleRequest struct {
	ContentHash string `json:"content_hash" validate:"required,contenthash"`
	Target      string `json:"target,omitempty" validate:"omitempty,pubkey"`
	Color       string `json:"color,omitempty" validate:"omitempty,oneof=yellow green blue pink"`
}

func TestValidate(t *testing.T) {
	v := New()

	valid := sampleRequest{
		ContentHash: strings.Repeat("ab", 32),
		Target:      strings.Repeat("cd", 32),
		Color:       "green",
	}
	assert.NoError(t, v.Validate(valid))
}

func TestValidate_FieldErrorsUseJSONNames(t *testing.T) {
	v := New()

	err := v.Validate(sampleRequest{ContentHash: "not-a-hash", Color: "magenta"})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))

	var derr *domainerrors.Error
	require.ErrorAs(t, err, &derr)
	fields, ok := derr.Details.(map[string]string)
	require.True(t, ok)
	assert.Contains(t, fields, "content_hash")
	assert.Contains(t, fields, "color")
	assert.NotContains(t, fields, "target", "empty optional fields pass")
}

func TestValidate_CustomValidators(t *testing.T) {
	v := New()

	// Right length, not hex.
	bad := sampleRequest{ContentHash: strings.Repeat("zz", 32)}
	assert.Error(t, v.Validate(bad))

	// Valid hash but a truncated public key.
	bad = sampleRequest{ContentHash: strings.Repeat("ab", 32), Target: "abcd"}
	assert.Error(t, v.Validate(bad))
}
