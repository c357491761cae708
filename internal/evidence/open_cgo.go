//go:build cgo

package evidence

// OpenPersistent opens the KuzuDB-backed ledger at dbPath.
func OpenPersistent(dbPath string) (Ledger, error) {
	return NewKuzuFileLedger(dbPath)
}
