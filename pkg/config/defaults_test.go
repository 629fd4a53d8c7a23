package config

import "testing"

func TestWriteTimeoutDefaults(t *testing.T) {
	if SnapshotWriteTimeout <= 0 {
		t.Fatal("snapshot write timeout must be positive")
	}
	if OutcomeWriteTimeout <= 0 {
		t.Fatal("outcome write timeout must be positive")
	}
	if AnalyticsQueryTimeout <= 0 {
		t.Fatal("analytics query timeout must be positive")
	}
}
