package vfs

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/gobeaver/nodefs"
	"github.com/gobeaver/nodefs/internal/logging"
)

// MountTable lists protocols to register, each backed by a driver from
// the nodefs driver factory.
//
//	mounts:
//	  - protocol: assets
//	    driver: s3
//	    bucket: my-bucket
//	    region: eu-west-1
//	    cache: true
//	    cache_ttl: 60s
//	  - protocol: backup
//	    driver: sftp
//	    host: backup.internal
//	    username: svc
//	    private_key: /etc/keys/id_ed25519
//	    readonly: true
type MountTable struct {
	Mounts []Mount `yaml:"mounts"`
}

// Mount describes one protocol. Driver settings that do not apply to the
// chosen driver are ignored.
type Mount struct {
	Protocol string `yaml:"protocol"`
	Driver   string `yaml:"driver"`

	// BasePath roots the local and sftp drivers.
	BasePath string `yaml:"base_path"`

	// Bucket and Prefix address s3 and gcs; Prefix also applies to azure.
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"`

	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	ForcePathStyle  bool   `yaml:"force_path_style"`

	CredentialsFile string `yaml:"credentials_file"`

	AccountName string `yaml:"account_name"`
	AccountKey  string `yaml:"account_key"`
	Container   string `yaml:"container"`

	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	Username   string `yaml:"username"`
	Password   string `yaml:"password"`
	PrivateKey string `yaml:"private_key"`

	ReadOnly bool          `yaml:"readonly"`
	Cache    bool          `yaml:"cache"`
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// LoadMounts decodes a mount table from r.
func LoadMounts(r io.Reader) (*MountTable, error) {
	var table MountTable
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&table); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode mount table: %w", err)
	}

	seen := make(map[string]bool, len(table.Mounts))
	for i, m := range table.Mounts {
		if m.Protocol == "" {
			return nil, fmt.Errorf("mount %d: %w: empty protocol", i, ErrInvalidProtocol)
		}
		if m.Driver == "" {
			return nil, fmt.Errorf("mount %q: driver is required", m.Protocol)
		}
		if seen[m.Protocol] {
			return nil, fmt.Errorf("mount %q: protocol listed twice", m.Protocol)
		}
		seen[m.Protocol] = true
	}
	return &table, nil
}

// LoadMountFile reads a mount table from a YAML file.
func LoadMountFile(path string) (*MountTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadMounts(f)
}

// Apply creates every mounted backend and registers it on reg. Nothing is
// registered if any backend fails to build.
func (t *MountTable) Apply(reg *Registry) error {
	backends := make([]nodefs.FileSystem, len(t.Mounts))
	for i, m := range t.Mounts {
		fs, err := m.Build()
		if err != nil {
			return fmt.Errorf("mount %q: %w", m.Protocol, err)
		}
		backends[i] = fs
	}
	for i, m := range t.Mounts {
		if err := reg.Register(m.Protocol, backends[i]); err != nil {
			return fmt.Errorf("mount %q: %w", m.Protocol, err)
		}
	}
	return nil
}

// Build creates the backend for m, wrapped as read-only or cached when
// requested.
func (m Mount) Build() (nodefs.FileSystem, error) {
	fs, err := nodefs.CreateDriver(m.DriverConfig())
	if err != nil {
		return nil, err
	}
	if m.ReadOnly {
		log := logging.For("mount").With().Str("protocol", m.Protocol).Logger()
		fs = nodefs.NewReadOnlyFileSystem(fs, nodefs.WithWriteAttemptHandler(func(op, path string) error {
			log.Debug().Str("op", op).Str("path", path).Msg("mutation rejected on read-only mount")
			return nodefs.ErrReadOnly
		}))
	}
	if m.Cache {
		var opts []nodefs.CacheOption
		if m.CacheTTL > 0 {
			opts = append(opts, nodefs.WithCacheTTL(m.CacheTTL))
		}
		fs = nodefs.NewCachingFileSystem(fs, nodefs.NewMemoryCache(), opts...)
	}
	return fs, nil
}

// DriverConfig translates m into the driver factory configuration.
func (m Mount) DriverConfig() *nodefs.Config {
	cfg := &nodefs.Config{
		Driver:        m.Driver,
		LocalBasePath: m.BasePath,

		S3Region:          m.Region,
		S3Bucket:          m.Bucket,
		S3Prefix:          m.Prefix,
		S3Endpoint:        m.Endpoint,
		S3AccessKeyID:     m.AccessKeyID,
		S3SecretAccessKey: m.SecretAccessKey,
		S3ForcePathStyle:  m.ForcePathStyle,

		GCSBucket:          m.Bucket,
		GCSPrefix:          m.Prefix,
		GCSCredentialsFile: m.CredentialsFile,

		AzureAccountName:   m.AccountName,
		AzureAccountKey:    m.AccountKey,
		AzureContainerName: m.Container,
		AzurePrefix:        m.Prefix,
		AzureEndpoint:      m.Endpoint,

		SFTPHost:       m.Host,
		SFTPPort:       m.Port,
		SFTPUsername:   m.Username,
		SFTPPassword:   m.Password,
		SFTPPrivateKey: m.PrivateKey,
		SFTPBasePath:   m.BasePath,
	}
	if cfg.LocalBasePath == "" {
		cfg.LocalBasePath = "."
	}
	if cfg.S3Region == "" {
		cfg.S3Region = "us-east-1"
	}
	if cfg.SFTPPort == 0 {
		cfg.SFTPPort = 22
	}
	return cfg
}
