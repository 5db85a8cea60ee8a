package hash

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Genesis is the previous hash of the first entry in every chain.
const Genesis = "genesis"

// Calculate hashes the JSON encoding of data. HTML characters are not
// escaped so the digest matches the bytes written to the message log.
func Calculate(data interface{}) (string, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(data); err != nil {
		return "", fmt.Errorf("failed to marshal data: %w", err)
	}

	return CalculateString(string(bytes.TrimRight(buf.Bytes(), "\n"))), nil
}

func CalculateString(data string) string {
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// Short returns the first n hex characters of the SHA-256 of data.
func Short(data string, n int) string {
	full := CalculateString(data)
	if n <= 0 || n > len(full) {
		return full
	}
	return full[:n]
}

// Link returns the chained hash of a data hash appended after previousHash.
func Link(previousHash, dataHash string) string {
	return CalculateString(previousHash + dataHash)
}

type HashChain struct {
	previousHash string
}

func NewHashChain(initialHash string) *HashChain {
	return &HashChain{
		previousHash: initialHash,
	}
}

// Add hashes data, links it to the chain and returns (dataHash, newHash).
func (hc *HashChain) Add(data interface{}) (string, string, error) {
	dataHash, err := Calculate(data)
	if err != nil {
		return "", "", err
	}

	newHash := Link(hc.previousHash, dataHash)
	hc.previousHash = newHash

	return dataHash, newHash, nil
}

func (hc *HashChain) GetPreviousHash() string {
	return hc.previousHash
}

func (hc *HashChain) SetPreviousHash(hash string) {
	hc.previousHash = hash
}
