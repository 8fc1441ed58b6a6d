package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/passvault/internal/flagx"
	"github.com/dmitrijs2005/passvault/internal/timex"
)

// JsonConfig defines a configuration structure tailored for JSON
// unmarshalling. It uses timex.Duration for interval fields, which allows
// parsing both string values such as "30m" and integer nanoseconds.
//
// This struct is an intermediate DTO used only for reading JSON
// configuration files. After unmarshalling, its fields are copied into the
// runtime Config struct which uses time.Duration.
type JsonConfig struct {
	DatabaseDSN           string         `json:"database_dsn"`
	ServerSecret          string         `json:"server_secret"`
	SessionTTL            timex.Duration `json:"session_ttl"`
	SessionCacheStaleness timex.Duration `json:"session_cache_staleness"`
	SessionSweepInterval  timex.Duration `json:"session_sweep_interval"`
	LockoutThreshold      int            `json:"lockout_threshold"`
	BackupCodeCount       int            `json:"backup_code_count"`
	MFAIssuer             string         `json:"mfa_issuer"`
	S3RootUser            string         `json:"s3_root_user"`
	S3RootPassword        string         `json:"s3_root_password"`
	S3Bucket              string         `json:"s3_bucket"`
	S3Region              string         `json:"s3_region"`
	S3BaseEndpoint        string         `json:"s3_base_endpoint"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config instance.
//
// The JSON file path comes from the -c or -config command-line flags; if
// neither is set, no JSON file is loaded. If the file cannot be read or
// contains invalid JSON, the function panics: a half-applied configuration
// is worse than no startup.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	config.DatabaseDSN = c.DatabaseDSN
	config.ServerSecret = c.ServerSecret
	config.SessionTTL = time.Duration(c.SessionTTL.Duration)
	config.SessionCacheStaleness = time.Duration(c.SessionCacheStaleness.Duration)
	config.SessionSweepInterval = time.Duration(c.SessionSweepInterval.Duration)
	config.LockoutThreshold = c.LockoutThreshold
	config.BackupCodeCount = c.BackupCodeCount
	config.MFAIssuer = c.MFAIssuer
	config.S3RootUser = c.S3RootUser
	config.S3RootPassword = c.S3RootPassword
	config.S3Bucket = c.S3Bucket
	config.S3Region = c.S3Region
	config.S3BaseEndpoint = c.S3BaseEndpoint
}
