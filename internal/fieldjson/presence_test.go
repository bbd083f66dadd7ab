package fieldjson

import "testing"

func TestIsAbsent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		data string
		want bool
	}{
		{"null", true},
		{" null\n", true},
		{"\tnull", true},
		{`"null"`, false},
		{"nul", false},
		{"nullx", false},
		{"0", false},
		{"{}", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsAbsent([]byte(tt.data)); got != tt.want {
			t.Errorf("IsAbsent(%q) = %v, want %v", tt.data, got, tt.want)
		}
	}
	if !IsAbsent(absent()) {
		t.Error("absent() must be absent")
	}
}
