package fieldjson

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

type requesterDetails struct {
	RequesterOrg string `json:"requester_org"`
	OperatorName string `json:"operator_name"`
}

type nonce string

type payload struct {
	RequesterDetails requesterDetails `json:"requester_details"`
	Nonce            *nonce           `json:"nonce,omitempty"`
}

type attestation struct {
	Org      string  `json:"org" jsonschema:"description=Requesting organization"`
	Operator string  `json:"operator"`
	Nonce    *string `json:"nonce,omitempty"`
}

type failingValue struct{}

var errFailingValue = errors.New("cannot encode")

func (failingValue) MarshalJSON() ([]byte, error) {
	return nil, errFailingValue
}

type failingRecord struct {
	First  string       `json:"first"`
	Broken failingValue `json:"broken"`
	Last   string       `json:"last"`
}

func ptr[T any](v T) *T {
	return &v
}

// listDir returns the sorted file names in dir.
func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir() failed: %v", err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func readFile(t *testing.T, dir, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		t.Fatalf("ReadFile(%s) failed: %v", name, err)
	}
	return string(data)
}

func mustSchema[T any](t *testing.T) *Schema {
	t.Helper()
	s, err := SchemaOf[T]()
	if err != nil {
		t.Fatalf("SchemaOf() failed: %v", err)
	}
	return s
}
