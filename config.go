package nodefs

import (
	"time"

	"github.com/gobeaver/beaver-kit/config"
)

// Config holds driver and runtime settings read from the environment.
// Variables carry the BEAVER_ prefix, e.g. BEAVER_NODEFS_DRIVER.
type Config struct {
	// Driver backing the default protocol (local, memory, s3, gcs, azure, sftp)
	Driver string `env:"NODEFS_DRIVER,default:local"`

	// Local driver configuration
	LocalBasePath string `env:"NODEFS_LOCAL_BASE_PATH,default:."`

	// S3 driver configuration
	S3Region          string `env:"NODEFS_S3_REGION,default:us-east-1"`
	S3Bucket          string `env:"NODEFS_S3_BUCKET"`
	S3Prefix          string `env:"NODEFS_S3_PREFIX"`
	S3Endpoint        string `env:"NODEFS_S3_ENDPOINT"`
	S3AccessKeyID     string `env:"NODEFS_S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `env:"NODEFS_S3_SECRET_ACCESS_KEY"`
	S3ForcePathStyle  bool   `env:"NODEFS_S3_FORCE_PATH_STYLE,default:false"`

	// GCS driver configuration
	GCSBucket          string `env:"NODEFS_GCS_BUCKET"`
	GCSPrefix          string `env:"NODEFS_GCS_PREFIX"`
	GCSCredentialsFile string `env:"NODEFS_GCS_CREDENTIALS_FILE"` // Path to service account JSON

	// Azure Blob Storage driver configuration
	AzureAccountName   string `env:"NODEFS_AZURE_ACCOUNT_NAME"`
	AzureAccountKey    string `env:"NODEFS_AZURE_ACCOUNT_KEY"`
	AzureContainerName string `env:"NODEFS_AZURE_CONTAINER_NAME"`
	AzurePrefix        string `env:"NODEFS_AZURE_PREFIX"`
	AzureEndpoint      string `env:"NODEFS_AZURE_ENDPOINT"` // Optional custom endpoint

	// SFTP driver configuration
	SFTPHost       string `env:"NODEFS_SFTP_HOST"`
	SFTPPort       int    `env:"NODEFS_SFTP_PORT,default:22"`
	SFTPUsername   string `env:"NODEFS_SFTP_USERNAME"`
	SFTPPassword   string `env:"NODEFS_SFTP_PASSWORD"`
	SFTPPrivateKey string `env:"NODEFS_SFTP_PRIVATE_KEY"` // Path to private key file
	SFTPBasePath   string `env:"NODEFS_SFTP_BASE_PATH"`

	// Metadata caching in front of the default backend
	CacheEnabled    bool `env:"NODEFS_CACHE_ENABLED,default:true"`
	CacheTTLSeconds int  `env:"NODEFS_CACHE_TTL_SECONDS,default:30"`

	// Optional YAML file mounting further protocols
	MountFile string `env:"NODEFS_MOUNT_FILE"`

	LogLevel string `env:"NODEFS_LOG_LEVEL,default:info"`
}

// GetConfig returns config loaded from environment
func GetConfig() (*Config, error) {
	cfg := &Config{}
	if err := config.Load(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// CacheTTL returns the configured cache TTL as a duration.
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLSeconds) * time.Second
}
