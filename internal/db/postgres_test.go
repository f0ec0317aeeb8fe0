package db

import (
	"testing"
)

func TestOpen_InvalidDSN(t *testing.T) {
	testCases := []struct {
		name string
		dsn  string
	}{
		{"invalid format", "invalid-dsn"},
		{"missing driver", "://localhost/test"},
		{"missing host", "postgres://user:pass@/db"},
		{"empty string", ""},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			db, err := Open(tc.dsn)
			if err == nil {
				if db != nil {
					db.Close()
				}
				t.Errorf("Open with invalid DSN %q should return error", tc.dsn)
			}
			if db != nil {
				t.Error("Open should return nil db when error occurs")
			}
		})
	}
}
