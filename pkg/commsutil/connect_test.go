package commsutil

import (
	"testing"
)

func TestConnect_InvalidURL(t *testing.T) {
	nc, err := Connect("invalid://not-a-comms-server", "gateway-test")
	if err == nil {
		if nc != nil {
			nc.Close()
		}
		t.Fatal("expected error for invalid URL")
	}
	if nc != nil {
		t.Errorf("expected nil connection on error, got %v", nc)
	}
}

func TestConnect_EmptyNameUsesDefault(t *testing.T) {
	// Connecting cannot succeed here, but the defaulting path must still run
	// before the dial and produce the same error as a named connect.
	nc, err := Connect("invalid://not-a-comms-server", "")
	if err == nil {
		if nc != nil {
			nc.Close()
		}
		t.Fatal("expected error for invalid URL")
	}
	if DefaultName != "action-gateway" {
		t.Errorf("expected default connection name action-gateway, got %s", DefaultName)
	}
}
