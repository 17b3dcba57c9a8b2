// Package config loads the JSON-configured settings for a channel-engine
// endpoint, in the same style as the teacher's setting.json loader:
// package-level GlobalCfg populated at init from a path overridable by an
// environment variable, plus an explicit Reload for callers that parse
// their own -config flag.
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Log mirrors the teacher's log block: level name and rotation path.
type Log struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// Window carries the tunables of spec §5; zero fields are defaulted by
// channelengine.Config.applyDefaults when the engine is constructed.
type Window struct {
	Size                 int `json:"size"`
	RetransmitIntervalMs int `json:"retransmit_interval_ms"`
	GiveUpThresholdMs    int `json:"give_up_threshold_ms"`
	RetransmitSweepMs    int `json:"retransmit_sweep_ms"`
	WindowPollIntervalMs int `json:"window_poll_interval_ms"`
}

// Settings is the top-level document read from setting.json.
type Settings struct {
	Log Log `json:"log"`

	// Role is "sender" or "receiver"; a process only ever plays one.
	Role string `json:"role"`

	// Listen is the receiver's bind address; Dial is the sender's target.
	Listen string `json:"listen"`
	Dial   string `json:"dial"`

	// CertFile/KeyFile are the receiver's TLS material; the sender does
	// not verify it (transport.Dial sets InsecureSkipVerify).
	CertFile string `json:"cert_file"`
	KeyFile  string `json:"key_file"`

	Window Window `json:"window"`
}

// GlobalCfg is the effective settings document, populated at init() from
// CHANNELENGINE_CONFIG (or config/setting.json) and replaceable via
// Reload.
var GlobalCfg *Settings

func init() {
	path := os.Getenv("CHANNELENGINE_CONFIG")
	if path == "" {
		path = "config/setting.json"
	}
	buf, err := os.ReadFile(path)
	if err != nil {
		// No config on disk yet is normal for a fresh checkout; callers
		// that need one pass an explicit -config flag and call Reload.
		GlobalCfg = &Settings{}
		return
	}
	cfg, verr := parse(buf)
	if verr != nil {
		fmt.Printf("failed to load %s: %s\n", path, verr.Error())
		GlobalCfg = &Settings{}
		return
	}
	GlobalCfg = cfg
}

// Reload parses path and, on success, replaces GlobalCfg.
func Reload(path string) error {
	buf, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	cfg, err := parse(buf)
	if err != nil {
		return err
	}
	GlobalCfg = cfg
	return nil
}

func parse(buf []byte) (*Settings, error) {
	var cfg Settings
	if err := json.Unmarshal(buf, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.verify(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// verify checks the document the way the teacher's Rule.verify checks a
// proxy rule: required fields present, role-appropriate address set.
func (s *Settings) verify() error {
	switch s.Role {
	case "sender":
		if s.Dial == "" {
			return fmt.Errorf("sender role requires \"dial\"")
		}
	case "receiver":
		if s.Listen == "" {
			return fmt.Errorf("receiver role requires \"listen\"")
		}
		if s.CertFile == "" || s.KeyFile == "" {
			return fmt.Errorf("receiver role requires \"cert_file\" and \"key_file\"")
		}
	case "":
		// allowed: library users who only want GlobalCfg.Window/Log.
	default:
		return fmt.Errorf("unknown role %q", s.Role)
	}
	return nil
}
