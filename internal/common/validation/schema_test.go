package validation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const personSchema = `{
	"type": "object",
	"required": ["name"],
	"properties": {
		"name": {"type": "string", "minLength": 1},
		"age": {"type": "integer", "minimum": 0}
	},
	"additionalProperties": false
}`

func TestRegistry_Validate(t *testing.T) {
	r, err := NewRegistry(map[string]string{"person": personSchema})
	require.NoError(t, err)
	assert.True(t, r.Has("person"))

	tests := []struct {
		name       string
		doc        string
		wantValid  bool
		wantFields []string
	}{
		{"valid", `{"name":"Asha","age":21}`, true, nil},
		{"missing required", `{"age":21}`, false, []string{"(root)"}},
		{"wrong type", `{"name":"Asha","age":"old"}`, false, []string{"age"}},
		{"unknown field", `{"name":"Asha","nickname":"A"}`, false, []string{"(root)"}},
		{"malformed json", `{"name":`, false, []string{"(root)"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := r.Validate("person", []byte(tt.doc))
			require.NoError(t, err)
			assert.Equal(t, tt.wantValid, res.Valid)

			fields := make([]string, 0, len(res.Errors))
			for _, e := range res.Errors {
				fields = append(fields, e.Field)
			}
			if tt.wantFields == nil {
				assert.Empty(t, fields)
			} else {
				assert.Equal(t, tt.wantFields, fields)
			}
		})
	}
}

func TestRegistry_UnknownSchema(t *testing.T) {
	r := MustRegistry(map[string]string{})
	_, err := r.Validate("missing", []byte(`{}`))
	assert.Error(t, err)
}

func TestNewRegistry_RejectsBadSchema(t *testing.T) {
	_, err := NewRegistry(map[string]string{"bad": `{"type": 12}`})
	assert.Error(t, err)
}
