package services

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"lead_engine/config"
)

func TestExtractJSONObject(t *testing.T) {
	tests := []struct {
		name  string
		in    string
		want  string
		found bool
	}{
		{"bare", `{"a":1}`, `{"a":1}`, true},
		{"prose around", "Sure! {\"a\":1} Hope that helps.", `{"a":1}`, true},
		{"nested", `x {"a":{"b":[1,{"c":2}]}} y`, `{"a":{"b":[1,{"c":2}]}}`, true},
		{"braces in strings", `{"note":"use } and { freely","s":5}`, `{"note":"use } and { freely","s":5}`, true},
		{"escaped quote", `{"note":"say \"}\"","s":5}`, `{"note":"say \"}\"","s":5}`, true},
		{"first of two", `{"a":1} and later {"b":2}`, `{"a":1}`, true},
		{"trailing brace prose", `{"a":1} (see {notes})`, `{"a":1}`, true},
		{"skips invalid", `{not json} then {"a":1}`, `{"a":1}`, true},
		{"code fence", "```json\n{\"a\": 1}\n```", `{"a": 1}`, true},
		{"unbalanced outer", `{ oops {"a":1}`, `{"a":1}`, true},
		{"none", "no json here", "", false},
		{"truncated", `{"a": 1`, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractJSONObject(tt.in)
			assert.Equal(t, tt.found, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSubstitute(t *testing.T) {
	vars := map[string]string{"NAME": "Ada", "CO": "Acme"}
	assert.Equal(t, "Hi Ada of Acme, Ada!", Substitute("Hi {{NAME}} of {{CO}}, {{NAME}}!", vars))
	assert.Equal(t, "Hi {{MISSING}}", Substitute("Hi {{MISSING}}", vars))
	assert.Equal(t, "{{ NAME }}", Substitute("{{ NAME }}", vars))
}

func TestBuildPrompt(t *testing.T) {
	tpl := config.PromptTemplate{System: "SYS", InitialEmailBody: "Write to {{NAME}}"}
	assert.Equal(t, "SYS\n\nWrite to Ada", BuildPrompt(tpl, map[string]string{"NAME": "Ada"}))
}
