package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/arcticchat/internal/flagx"
	"github.com/dmitrijs2005/arcticchat/internal/timex"
)

// JsonConfig is the file representation of Config. Durations accept both
// strings such as "10s" and integer nanoseconds via timex.Duration. Keys
// that are absent keep the value already in Config.
type JsonConfig struct {
	EndpointAddrGRPC     string         `json:"endpoint_addr_grpc"`
	LogBackend           string         `json:"log_backend"`
	LogLevel             string         `json:"log_level"`
	StorageMode          string         `json:"storage"`
	DatabaseDSN          string         `json:"database_dsn"`
	SecretKey            string         `json:"secret_key"`
	MasterSecret         string         `json:"master_secret"`
	MasterSalt           string         `json:"master_salt"`
	RotateAfterMessages  *int64         `json:"rotate_after_messages"`
	AdminWeightThreshold *int           `json:"admin_weight_threshold"`
	AppendRatePerSecond  *float64       `json:"append_rate"`
	AppendBurst          *int           `json:"append_burst"`
	SweepInterval        timex.Duration `json:"sweep_interval"`
	ExpiryLagBound       timex.Duration `json:"expiry_lag_bound"`
	PurgesPerSecond      *int           `json:"purges_per_second"`
	BlobStore            string         `json:"blob_store"`
	S3AccessKey          string         `json:"s3_access_key"`
	S3SecretKey          string         `json:"s3_secret_key"`
	S3Bucket             string         `json:"s3_bucket"`
	S3Region             string         `json:"s3_region"`
	S3BaseEndpoint       string         `json:"s3_base_endpoint"`
	S3PublicBaseURL      string         `json:"s3_public_base_url"`
	RabbitURL            string         `json:"rabbit_url"`
	RabbitExchange       string         `json:"rabbit_exchange"`
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setPtr[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// parseJson loads configuration values from the JSON file named by -c or
// -config (or $ARCTIC_CONFIG). Without one nothing is loaded. An unreadable
// or malformed file panics.
func parseJson(config *Config) {

	jsonConfigFile := flagx.ConfigFilePath(os.Args[1:])

	// nothing to load
	if jsonConfigFile == "" {
		return
	}

	c := &JsonConfig{}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	err = json.Unmarshal(file, c)
	if err != nil {
		panic(err)
	}

	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.LogBackend, c.LogBackend)
	setString(&config.LogLevel, c.LogLevel)
	setString(&config.StorageMode, c.StorageMode)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.MasterSecret, c.MasterSecret)
	setString(&config.MasterSalt, c.MasterSalt)
	setPtr(&config.RotateAfterMessages, c.RotateAfterMessages)
	setPtr(&config.AdminWeightThreshold, c.AdminWeightThreshold)
	setPtr(&config.AppendRatePerSecond, c.AppendRatePerSecond)
	setPtr(&config.AppendBurst, c.AppendBurst)
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.ExpiryLagBound.Duration != 0 {
		config.ExpiryLagBound = c.ExpiryLagBound.Duration
	}
	setPtr(&config.PurgesPerSecond, c.PurgesPerSecond)
	setString(&config.BlobStore, c.BlobStore)
	setString(&config.S3AccessKey, c.S3AccessKey)
	setString(&config.S3SecretKey, c.S3SecretKey)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.S3PublicBaseURL, c.S3PublicBaseURL)
	setString(&config.RabbitURL, c.RabbitURL)
	setString(&config.RabbitExchange, c.RabbitExchange)
}
