//go:build !cgo

package evidence

import "fmt"

// OpenPersistent is unavailable without CGO; the KuzuDB driver wraps a C
// library. Callers fall back to NewMemLedger.
func OpenPersistent(dbPath string) (Ledger, error) {
	return nil, fmt.Errorf("evidence: persistent ledger at %s requires a cgo build", dbPath)
}
