package id

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate_Uniqueness(t *testing.T) {
	ids := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id, err := Generate(PrefixIngest)
		require.NoError(t, err)
		assert.False(t, ids[id], "duplicate id %s", id)
		ids[id] = true
	}
	assert.Len(t, ids, 1000)
}

func TestGenerate_Format(t *testing.T) {
	for _, prefix := range []string{PrefixIngest, PrefixReconcile} {
		t.Run(prefix, func(t *testing.T) {
			id, err := Generate(prefix)
			require.NoError(t, err)

			require.True(t, strings.HasPrefix(id, prefix+"-"))
			nano := strings.TrimPrefix(id, prefix+"-")
			assert.Len(t, nano, 21)
			for _, c := range nano {
				assert.True(t,
					(c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') || (c >= '0' && c <= '9') || c == '_' || c == '-',
					"character %c is not URL-safe", c)
			}
		})
	}
}

func TestMustGenerate(t *testing.T) {
	id := MustGenerate(PrefixReconcile)
	assert.True(t, strings.HasPrefix(id, "reconcile-"))
	assert.Len(t, id, len("reconcile")+1+21)
}
