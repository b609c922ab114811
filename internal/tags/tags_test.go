package tags

import (
	"reflect"
	"testing"
)

func TestInferRenameThenImply(t *testing.T) {
	rules := Rules{
		Renames:      map[string]string{"Laptop stickers": "laptop stickers"},
		Implications: map[string][]string{"bird photography": {"birds", "photography"}},
	}

	got := rules.Infer([]string{"Laptop stickers", "bird photography"})
	want := []string{"laptop stickers", "birds", "photography", "bird photography"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Infer() = %v, want %v", got, want)
	}
}

func TestInferTable(t *testing.T) {
	tests := []struct {
		name  string
		rules Rules
		in    []string
		want  []string
	}{
		{
			name: "rename is not recursive",
			rules: Rules{
				Renames: map[string]string{"a": "b", "b": "c"},
			},
			in:   []string{"a"},
			want: []string{"b"},
		},
		{
			name: "implication matches post-rename spelling",
			rules: Rules{
				Renames:      map[string]string{"Birds": "birds"},
				Implications: map[string][]string{"birds": {"animals"}},
			},
			in:   []string{"Birds"},
			want: []string{"animals", "birds"},
		},
		{
			name: "duplicates from implication are preserved",
			rules: Rules{
				Implications: map[string][]string{"seagulls": {"birds"}},
			},
			in:   []string{"birds", "seagulls"},
			want: []string{"birds", "birds", "seagulls"},
		},
		{
			name: "order is preserved when no rule matches",
			in:   []string{"x", "y", "z"},
			want: []string{"x", "y", "z"},
		},
		{
			name: "empty input",
			in:   nil,
			want: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.rules.Infer(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Infer(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
