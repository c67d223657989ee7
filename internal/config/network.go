package config

import (
	"errors"
	"fmt"
	"io/fs"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/sweeney/sump-controller/internal/status"
)

// networkEnv mirrors the variables pi-helper writes.
type networkEnv struct {
	Type       string `env:"NETWORK_TYPE"`
	IP         string `env:"NETWORK_IP"`
	Status     string `env:"NETWORK_STATUS"`
	Gateway    string `env:"NETWORK_GATEWAY"`
	WifiStatus string `env:"NETWORK_WIFI_STATUS"`
	SSID       string `env:"NETWORK_WIFI_SSID"`
}

// ReadNetwork reads pi-helper's env file, falling back to the process
// environment when the file is absent. It returns nil when no network
// status is known.
func ReadNetwork(path string) (*status.NetworkInfo, error) {
	vars, err := godotenv.Read(path)
	if errors.Is(err, fs.ErrNotExist) {
		vars = nil
	} else if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var ne networkEnv
	opts := env.Options{}
	if vars != nil {
		opts.Environment = vars
	}
	if err := env.ParseWithOptions(&ne, opts); err != nil {
		return nil, fmt.Errorf("parse network env: %w", err)
	}
	if ne.Status == "" {
		return nil, nil
	}
	return &status.NetworkInfo{
		Type:       ne.Type,
		IP:         ne.IP,
		Status:     ne.Status,
		Gateway:    ne.Gateway,
		WifiStatus: ne.WifiStatus,
		SSID:       ne.SSID,
	}, nil
}
