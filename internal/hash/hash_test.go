package hash

import (
	"testing"
)

func TestCalculate(t *testing.T) {
	data := map[string]interface{}{
		"id":   "2025-01-01T00-00-00.000000Z_LYRA",
		"text": "<b>hi</b> & bye",
	}

	hash1, err := Calculate(data)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	hash2, err := Calculate(data)
	if err != nil {
		t.Fatalf("Calculate failed: %v", err)
	}

	if hash1 != hash2 {
		t.Error("Same data should produce same hash")
	}

	if len(hash1) != 64 {
		t.Errorf("Expected hash length 64, got %d", len(hash1))
	}

	want := CalculateString(`{"id":"2025-01-01T00-00-00.000000Z_LYRA","text":"<b>hi</b> & bye"}`)
	if hash1 != want {
		t.Errorf("Calculate should hash unescaped compact JSON, got %s want %s", hash1, want)
	}
}

func TestCalculateString(t *testing.T) {
	// sha256("abc")
	want := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"
	if got := CalculateString("abc"); got != want {
		t.Errorf("CalculateString(abc) = %s, want %s", got, want)
	}
}

func TestShort(t *testing.T) {
	tests := []struct {
		name string
		n    int
		want string
	}{
		{name: "eight", n: 8, want: "ba7816bf"},
		{name: "zero returns full", n: 0, want: CalculateString("abc")},
		{name: "too long returns full", n: 100, want: CalculateString("abc")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Short("abc", tt.n); got != tt.want {
				t.Errorf("Short() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestHashChain(t *testing.T) {
	hc := NewHashChain(Genesis)

	dataHash1, hash1, err := hc.Add("first message")
	if err != nil {
		t.Fatalf("Failed to add to chain: %v", err)
	}

	if hash1 == "" || dataHash1 == "" {
		t.Error("Hash should not be empty")
	}

	if hash1 != Link(Genesis, dataHash1) {
		t.Error("First hash should link to genesis")
	}

	dataHash2, hash2, err := hc.Add("second message")
	if err != nil {
		t.Fatalf("Failed to add to chain: %v", err)
	}

	if hash1 == hash2 {
		t.Error("Different entries should produce different hashes")
	}

	if hash2 != Link(hash1, dataHash2) {
		t.Error("Second hash should link to the first")
	}

	if hc.GetPreviousHash() != hash2 {
		t.Error("Previous hash should be updated to latest hash")
	}
}

func TestHashChainSetPreviousHash(t *testing.T) {
	hc := NewHashChain("initial")

	newHash := "new_hash_value"
	hc.SetPreviousHash(newHash)

	if hc.GetPreviousHash() != newHash {
		t.Errorf("Expected previous hash %s, got %s", newHash, hc.GetPreviousHash())
	}
}
