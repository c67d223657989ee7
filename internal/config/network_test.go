package config

import (
	"path/filepath"
	"testing"
)

func TestReadNetworkFromFile(t *testing.T) {
	path := writeFile(t, "pi-helper.env", `NETWORK_TYPE=wifi
NETWORK_IP=192.168.1.42
NETWORK_STATUS=connected
NETWORK_GATEWAY=192.168.1.1
NETWORK_WIFI_STATUS=associated
NETWORK_WIFI_SSID="My Net"
`)

	info, err := ReadNetwork(path)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}
	if info == nil {
		t.Fatal("expected network info")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.42" || info.Status != "connected" {
		t.Errorf("got %+v", info)
	}
	if info.Gateway != "192.168.1.1" || info.WifiStatus != "associated" || info.SSID != "My Net" {
		t.Errorf("got %+v", info)
	}
}

func TestReadNetworkNoStatus(t *testing.T) {
	path := writeFile(t, "pi-helper.env", "NETWORK_IP=10.0.0.2\n")

	info, err := ReadNetwork(path)
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}
	if info != nil {
		t.Errorf("expected nil without NETWORK_STATUS, got %+v", info)
	}
}

func TestReadNetworkFallsBackToEnvironment(t *testing.T) {
	t.Setenv("NETWORK_STATUS", "connected")
	t.Setenv("NETWORK_TYPE", "ethernet")
	t.Setenv("NETWORK_IP", "10.0.0.9")

	info, err := ReadNetwork(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("ReadNetwork: %v", err)
	}
	if info == nil || info.Type != "ethernet" || info.IP != "10.0.0.9" {
		t.Errorf("got %+v", info)
	}
}
