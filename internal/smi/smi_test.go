package smi

import "testing"

func TestIsNewProtocol(t *testing.T) {
	tests := []struct {
		value uint32
		want  bool
	}{
		{0x00000001, false},
		{0xabcd0000, true},
		{0xabcd0001, true},
		{0xabce0001, false},
	}
	for _, tt := range tests {
		if got := IsNewProtocol(tt.value); got != tt.want {
			t.Fatalf("IsNewProtocol(%#x) = %v, want %v", tt.value, got, tt.want)
		}
	}
}
