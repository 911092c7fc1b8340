package config

import (
	"fmt"
	"net/url"
	"time"
)

type LogConfig struct {
	Level  string `yaml:"level" env:"POCKET_LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"POCKET_LOG_FORMAT" env-default:"json"`
}

// ClientConfig is what a store client needs to reach the cluster.
type ClientConfig struct {
	NamenodeAddress string        `yaml:"namenode_address" env:"POCKET_NAMENODE" env-default:"127.0.0.1:9060"`
	NoDelay         bool          `yaml:"nodelay" env:"POCKET_NODELAY" env-default:"true"`
	DialTimeout     time.Duration `yaml:"dial_timeout" env:"POCKET_DIAL_TIMEOUT" env-default:"5s"`
	BufferSize      int           `yaml:"buffer_size" env:"POCKET_BUFFER_SIZE" env-default:"524288"`
}

const (
	RepositoryMemory   = "memory"
	RepositoryPostgres = "postgres"
)

type NamenodeConfig struct {
	ListenAddress string `yaml:"listen_address" env:"POCKET_NAMENODE_LISTEN" env-default:"127.0.0.1:9060"`
	Repository    string `yaml:"repository" env:"POCKET_NAMENODE_REPOSITORY" env-default:"memory"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host" env:"POSTGRES_HOST" env-default:"localhost"`
	Port     int    `yaml:"port" env:"POSTGRES_PORT" env-default:"5432"`
	User     string `yaml:"user" env:"POSTGRES_USER" env-default:"postgres"`
	Password string `yaml:"password" env:"POSTGRES_PASSWORD"`
	Name     string `yaml:"name" env:"POSTGRES_DB" env-default:"pocket"`
	SSLMode  string `yaml:"sslmode" env:"POSTGRES_SSLMODE" env-default:"disable"`
}

func (c DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}}.Encode(),
	}
	return u.String()
}

const (
	DatanodeKindNaRPC  = "narpc"
	DatanodeKindReflex = "reflex"
)

type DatanodeConfig struct {
	Address       string `yaml:"address"`
	Kind          string `yaml:"kind"`
	StorageClass  int32  `yaml:"storage_class"`
	LocationClass int32  `yaml:"location_class"`
	Capacity      int64  `yaml:"capacity"`
}
