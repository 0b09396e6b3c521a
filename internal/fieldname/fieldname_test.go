package fieldname

import (
	"testing"

	"github.com/matthewbaird/formdesigner/internal/schema"
	"github.com/stretchr/testify/assert"
)

func fields(names ...string) []schema.Field {
	out := make([]schema.Field, len(names))
	for i, n := range names {
		out[i] = schema.Field{Type: "input", Name: n}
	}
	return out
}

func TestNext(t *testing.T) {
	tests := []struct {
		name   string
		fields []schema.Field
		want   string
	}{
		{"empty", nil, "output_1"},
		{"no matches", fields("email", "output_x", "output_"), "output_1"},
		{"gaps", fields("output_1", "output_3"), "output_4"},
		{"unordered", fields("output_10", "output_2"), "output_11"},
		{"leading zeros", fields("output_007"), "output_8"},
		{"suffix ignored", fields("output_5a", "xoutput_9"), "output_1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Next(tt.fields); got != tt.want {
				t.Errorf("Next() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNextIgnoresPresentationalFields(t *testing.T) {
	fs := append(fields("output_1"), schema.Field{Type: "text-block", Name: "output_9"})
	assert.Equal(t, "output_2", Next(fs))
}

func TestNextAfterSkipsTakenAndFloor(t *testing.T) {
	fs := append(fields("output_1"), schema.Field{Type: "divider", Name: "output_2"})
	name, n := NextAfter(fs, 0)
	assert.Equal(t, "output_3", name)
	assert.Equal(t, 3, n)

	name, n = NextAfter(fields("output_1"), 5)
	assert.Equal(t, "output_6", name)
	assert.Equal(t, 6, n)
}

func TestNumber(t *testing.T) {
	n, ok := Number("output_12")
	assert.True(t, ok)
	assert.Equal(t, 12, n)

	_, ok = Number("output_-1")
	assert.False(t, ok)
}
