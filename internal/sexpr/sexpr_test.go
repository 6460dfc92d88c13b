package sexpr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	src := `;;; header
(defun greet (name / msg)
  (setq msg "HELLO") ; trailing
  (princ msg))
(greet "Wo\"rld\101")
'(1 2)
`
	ds, err := Parse(src)
	require.NoError(t, err)
	require.Len(t, ds, 3)

	assert.Equal(t, "defun", ds[0].Head())
	assert.Equal(t, 2, ds[0].Line)
	assert.Equal(t, `(defun greet (name / msg) (setq msg "HELLO") (princ msg))`, ds[0].String())

	arg := ds[1].Items[1]
	assert.Equal(t, String, arg.Kind)
	assert.Equal(t, `Wo"rldA`, arg.Text)

	assert.Equal(t, Quote, ds[2].Kind)
	assert.Equal(t, "'(1 2)", ds[2].String())
}

func TestParseEmpty(t *testing.T) {
	ds, err := Parse(";; only comments\n\n")
	require.NoError(t, err)
	assert.Empty(t, ds)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		src  string
		line int
	}{
		{"(a b", 1},
		{"a)\n", 1},
		{"\n(princ \"abc)", 2},
		{"'", 1},
		{"(a ; )\n", 1},
	}
	for _, tt := range tests {
		_, err := Parse(tt.src)
		require.Error(t, err, "%q", tt.src)
		assert.True(t, errors.Is(err, ErrSyntax))
		var se *SyntaxError
		require.True(t, errors.As(err, &se))
		assert.Equal(t, tt.line, se.Line, "%q", tt.src)
	}
}
