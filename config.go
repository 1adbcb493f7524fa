package resthttpd

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// LogType selects where the logging package (see the logging
// subpackage) sends its output, mirroring VMREST_LOG_TYPE in the
// original engine's configuration.
type LogType int

const (
	LogTypeConsole LogType = iota
	LogTypeFile
	LogTypeSyslog
)

// Config is the engine's immutable-after-Init configuration, §3.
// Workers read it without locking once Init has copied it into the
// Engine.
type Config struct {
	Port             int
	ConnTimeoutSec   int
	MaxDataPerConnMB int
	WorkerThreadCount int
	MaxClients       int

	IsSecure      bool
	SSLCertPath   string
	SSLKeyPath    string
	SSLCipherList string
	// SSLMinTLS12 disables protocols older than TLS 1.2 when true,
	// matching the configuration bit that disables SSLv2/v3 in the
	// original engine.
	SSLMinTLS12 bool

	UseSysLog     bool
	LogType       LogType
	DebugLogFile  string
	DebugLogLevel string
	DaemonName    string

	// StripCRLFQuirk reproduces VmRESTCopyDataWithoutCRLF's legacy
	// behavior of stripping stray CR/LF bytes from a Content-Length
	// body. Default false: bodies pass through verbatim. See §9.
	StripCRLFQuirk bool

	MaxDataBufferLen int
	MaxChunkLineLen  int
	MaxHeaderBytes   int
	MaxHeaderCount   int
	MaxURILen        int
	MaxHeaderValLen  int
}

// DefaultConfig returns the configuration the original engine ships
// as defaults: 5 workers, 5 max clients, no TLS.
func DefaultConfig() Config {
	return Config{
		Port:              8080,
		ConnTimeoutSec:    60,
		MaxDataPerConnMB:  10,
		WorkerThreadCount: 5,
		MaxClients:        5,
		LogType:           LogTypeConsole,
		DebugLogLevel:     "info",
		DaemonName:        "vmrestd",
		MaxDataBufferLen:  64 * 1024,
		MaxChunkLineLen:   4096,
		MaxHeaderBytes:    1 << 20,
		MaxHeaderCount:    256,
		MaxURILen:         2048,
		MaxHeaderValLen:   8192,
	}
}

// Validate enforces the ranges named in §3's data model. It never
// mutates c.
func (c Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return newError("Config.Validate", KindInvalidParams, fmt.Errorf("port %d out of range 1-65535", c.Port))
	}
	if c.WorkerThreadCount < 1 {
		return newError("Config.Validate", KindInvalidParams, fmt.Errorf("workerThreadCount must be >= 1"))
	}
	if c.MaxClients < 1 {
		return newError("Config.Validate", KindInvalidParams, fmt.Errorf("maxClients must be >= 1"))
	}
	if c.IsSecure {
		if c.SSLCertPath == "" || c.SSLKeyPath == "" {
			return newError("Config.Validate", KindInvalidParams, fmt.Errorf("isSecure requires sslCertPath and sslKeyPath"))
		}
	}
	if c.MaxDataBufferLen <= 0 || c.MaxChunkLineLen <= 0 || c.MaxHeaderBytes <= 0 {
		return newError("Config.Validate", KindInvalidParams, fmt.Errorf("buffer size limits must be positive"))
	}
	return nil
}

// tomlConfig mirrors Config with TOML tags for the §6 configuration
// file, a flat key=value document whose bare syntax is a strict
// superset of the spec's literal `port=<int>` grammar. Grounded on
// nabbar-golib/httpserver's validate-before-use config loading shape.
type tomlConfig struct {
	Port              int    `toml:"port"`
	ConnTimeoutSec    int    `toml:"connTimeoutSec"`
	MaxDataPerConnMB  int    `toml:"maxDataPerConnMB"`
	WorkerThreadCount int    `toml:"workerThreadCount"`
	MaxClients        int    `toml:"maxClients"`
	IsSecure          bool   `toml:"isSecure"`
	SSLCertPath       string `toml:"sslCertPath"`
	SSLKeyPath        string `toml:"sslKeyPath"`
	SSLCipherList     string `toml:"sslCipherList"`
	SSLMinTLS12       bool   `toml:"sslMinTLS12"`
	UseSysLog         bool   `toml:"useSysLog"`
	DebugLogFile      string `toml:"debugLogFile"`
	DebugLogLevel     string `toml:"debugLogLevel"`
	DaemonName        string `toml:"daemonName"`
	StripCRLFQuirk    bool   `toml:"stripCRLFQuirk"`
}

// LoadConfigFile reads the TOML configuration file at path and
// overlays it on top of DefaultConfig, per §6's realized configuration
// file. Fields absent from the file keep their default value. The
// buffer-size limits (MaxDataBufferLen, MaxChunkLineLen, ...) are not
// file-configurable in the original engine's config grammar and always
// come from DefaultConfig.
func LoadConfigFile(path string) (Config, error) {
	cfg := DefaultConfig()
	var tc tomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		return Config{}, newError("LoadConfigFile", KindInvalidParams, err)
	}

	if tc.Port != 0 {
		cfg.Port = tc.Port
	}
	if tc.ConnTimeoutSec != 0 {
		cfg.ConnTimeoutSec = tc.ConnTimeoutSec
	}
	if tc.MaxDataPerConnMB != 0 {
		cfg.MaxDataPerConnMB = tc.MaxDataPerConnMB
	}
	if tc.WorkerThreadCount != 0 {
		cfg.WorkerThreadCount = tc.WorkerThreadCount
	}
	if tc.MaxClients != 0 {
		cfg.MaxClients = tc.MaxClients
	}
	cfg.IsSecure = tc.IsSecure
	if tc.SSLCertPath != "" {
		cfg.SSLCertPath = tc.SSLCertPath
	}
	if tc.SSLKeyPath != "" {
		cfg.SSLKeyPath = tc.SSLKeyPath
	}
	if tc.SSLCipherList != "" {
		cfg.SSLCipherList = tc.SSLCipherList
	}
	cfg.SSLMinTLS12 = tc.SSLMinTLS12
	cfg.UseSysLog = tc.UseSysLog
	if tc.DebugLogFile != "" {
		cfg.DebugLogFile = tc.DebugLogFile
	}
	if tc.DebugLogLevel != "" {
		cfg.DebugLogLevel = tc.DebugLogLevel
	}
	if tc.DaemonName != "" {
		cfg.DaemonName = tc.DaemonName
	}
	cfg.StripCRLFQuirk = tc.StripCRLFQuirk

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) connTimeout() time.Duration {
	if c.ConnTimeoutSec <= 0 {
		return defaultConnTimeout
	}
	return time.Duration(c.ConnTimeoutSec) * time.Second
}

func (c Config) maxDataPerConnBytes() int64 {
	return int64(c.MaxDataPerConnMB) * 1024 * 1024
}
