package config

import (
	"os"
	"os/user"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// Default filenames.
const (
	// DefaultKeyfile is the default name of the file containing the node's
	// ed25519 private key
	DefaultKeyfile = "node_key"

	// DefaultBadgerFile is the default name of the folder containing the Badger
	// database
	DefaultBadgerFile = "badger_db"

	// DefaultConnectionInfoFile is the file where the node writes its current
	// listen address.
	DefaultConnectionInfoFile = "node_connection_info.config"

	// DefaultLogFile is the name of the log file created in LogDir.
	DefaultLogFile = "safenode.log"
)

// Default configuration values.
const (
	DefaultLogLevel           = "debug"
	DefaultLocalAddr          = "127.0.0.1:12000"
	DefaultServiceAddr        = "127.0.0.1:8000"
	DefaultTransport          = "tcp"
	DefaultMaxCapacity        = 2 * 1024 * 1024 * 1024
	DefaultStorageThreshold   = 0.9
	DefaultElderSize          = 7
	DefaultChunkCopyCount     = 4
	DefaultGenesisAmount      = 1_000_000_000
	DefaultRequestTimeout     = 10 * time.Second
	DefaultDkgTimeout         = 60 * time.Second
	DefaultJoinTimeout        = 30 * time.Second
	DefaultProbeInterval      = 30 * time.Second
	DefaultFaultCheckInterval = 60 * time.Second
	DefaultPersistInterval    = 60 * time.Second
	DefaultTCPTimeout         = 1000 * time.Millisecond
	DefaultInboxCapacity      = 20
	DefaultMsgCacheSize       = 1000
	DefaultMaxPool            = 2
	DefaultStore              = false
	DefaultJoinsAllowed       = true
)

// Config contains all the configuration properties of a safe node.
type Config struct {
	// RootDir is the top-level directory containing the node's identity and
	// data stores.
	RootDir string `mapstructure:"root-dir"`

	// LogDir, if set, receives a log file in addition to stderr.
	LogDir string `mapstructure:"log-dir"`

	// LogLevel determines the chattiness of the log output.
	LogLevel string `mapstructure:"log"`

	// First makes this node the genesis node of a new network. The node then
	// listens on First instead of LocalAddr and does not bootstrap.
	First string `mapstructure:"first"`

	// LocalAddr is the local address:port the Comm binds.
	LocalAddr string `mapstructure:"local-addr"`

	// PublicAddr is advertised to peers instead of LocalAddr when the bound
	// address is not routable.
	PublicAddr string `mapstructure:"public-addr"`

	// BootstrapPeers are the addresses contacted to find our section.
	BootstrapPeers []string `mapstructure:"bootstrap-peers"`

	// Transport selects the Comm implementation: "tcp" or "quic".
	Transport string `mapstructure:"transport"`

	// MaxCapacity is the number of bytes the data stores may use.
	MaxCapacity uint64 `mapstructure:"max-capacity"`

	// StorageThreshold is the used/max ratio at which an adult reports itself
	// as getting full.
	StorageThreshold float64 `mapstructure:"storage-threshold"`

	// ClearData wipes RootDir data stores at startup.
	ClearData bool `mapstructure:"clear-data"`

	// SkipAutoPortForwarding is accepted for compatibility; port forwarding
	// is never attempted.
	SkipAutoPortForwarding bool `mapstructure:"skip-auto-port-forwarding"`

	// NoService disables the HTTP status service.
	NoService bool `mapstructure:"no-service"`

	// ServiceAddr is the address:port of the HTTP status service.
	ServiceAddr string `mapstructure:"service-listen"`

	// ElderSize is the number of elders of a section.
	ElderSize int `mapstructure:"elder-size"`

	// SplitThreshold is the number of members each half of a prefix needs
	// before the section splits. Zero means twice ElderSize.
	SplitThreshold int `mapstructure:"split-threshold"`

	// ChunkCopyCount is the number of adults holding each chunk.
	ChunkCopyCount int `mapstructure:"chunk-copy-count"`

	// GenesisAmount is credited to the genesis key when First is set.
	GenesisAmount uint64 `mapstructure:"genesis-amount"`

	// RequestTimeout bounds every outbound request to adults.
	RequestTimeout time.Duration `mapstructure:"request-timeout"`

	// DkgTimeout bounds a DKG session.
	DkgTimeout time.Duration `mapstructure:"dkg-timeout"`

	// JoinTimeout is the delay before bootstrap and join requests are resent.
	JoinTimeout time.Duration `mapstructure:"join-timeout"`

	// ProbeInterval is the period of anti-entropy probes sent by elders.
	ProbeInterval time.Duration `mapstructure:"probe-interval"`

	// FaultCheckInterval is the period at which elders look for
	// unresponsive members.
	FaultCheckInterval time.Duration `mapstructure:"fault-check-interval"`

	// PersistInterval is the period at which the prefix map is written.
	PersistInterval time.Duration `mapstructure:"persist-interval"`

	// TCPTimeout is the dial and write timeout of the TCP and QUIC comms.
	TCPTimeout time.Duration `mapstructure:"timeout"`

	// MaxPool controls how many connections are pooled per peer.
	MaxPool int `mapstructure:"max-pool"`

	// InboxCapacity bounds the queue of incoming messages. Overflow drops the
	// oldest message.
	InboxCapacity int `mapstructure:"inbox-capacity"`

	// MsgCacheSize is the number of recent message ids kept for
	// deduplication.
	MsgCacheSize int `mapstructure:"msg-cache-size"`

	// Store activates persistent (badger) chunk-holder metadata.
	Store bool `mapstructure:"store"`

	// JoinsAllowed is the initial join policy of a genesis section.
	JoinsAllowed bool `mapstructure:"joins-allowed"`

	logger *logrus.Logger
}

// NewDefaultConfig returns a config object with default values.
func NewDefaultConfig() *Config {
	config := &Config{
		RootDir:            DefaultRootDir(),
		LogLevel:           DefaultLogLevel,
		LocalAddr:          DefaultLocalAddr,
		Transport:          DefaultTransport,
		MaxCapacity:        DefaultMaxCapacity,
		StorageThreshold:   DefaultStorageThreshold,
		ServiceAddr:        DefaultServiceAddr,
		ElderSize:          DefaultElderSize,
		ChunkCopyCount:     DefaultChunkCopyCount,
		GenesisAmount:      DefaultGenesisAmount,
		RequestTimeout:     DefaultRequestTimeout,
		DkgTimeout:         DefaultDkgTimeout,
		JoinTimeout:        DefaultJoinTimeout,
		ProbeInterval:      DefaultProbeInterval,
		FaultCheckInterval: DefaultFaultCheckInterval,
		PersistInterval:    DefaultPersistInterval,
		TCPTimeout:         DefaultTCPTimeout,
		MaxPool:            DefaultMaxPool,
		InboxCapacity:      DefaultInboxCapacity,
		MsgCacheSize:       DefaultMsgCacheSize,
		Store:              DefaultStore,
		JoinsAllowed:       DefaultJoinsAllowed,
	}

	return config
}

// NewTestConfig returns a config object with default values, a temporary
// root directory and a special logger for debugging tests.
func NewTestConfig(t testing.TB, level logrus.Level) *Config {
	config := NewDefaultConfig()
	config.RootDir = t.TempDir()
	config.NoService = true
	config.logger = common.NewTestLogger(t, level)
	return config
}

// Validate checks the values that would make the node misbehave.
func (c *Config) Validate() error {
	if c.RootDir == "" {
		return common.NewError(common.Configuration, "root-dir is not set")
	}
	if c.ElderSize < 1 {
		return common.NewError(common.Configuration, "elder-size must be positive, got %d", c.ElderSize)
	}
	if c.ChunkCopyCount < 1 {
		return common.NewError(common.Configuration, "chunk-copy-count must be positive, got %d", c.ChunkCopyCount)
	}
	if c.StorageThreshold <= 0 || c.StorageThreshold > 1 {
		return common.NewError(common.Configuration, "storage-threshold must be in (0, 1], got %v", c.StorageThreshold)
	}
	if c.InboxCapacity < 1 {
		return common.NewError(common.Configuration, "inbox-capacity must be positive, got %d", c.InboxCapacity)
	}
	if c.First == "" && len(c.BootstrapPeers) == 0 {
		return common.NewError(common.Configuration, "either first or bootstrap-peers must be set")
	}
	switch c.Transport {
	case "tcp", "quic":
	default:
		return common.NewError(common.Configuration, "unknown transport %q", c.Transport)
	}
	return nil
}

// ListenAddr is the address the Comm binds.
func (c *Config) ListenAddr() string {
	if c.First != "" {
		return c.First
	}
	return c.LocalAddr
}

// SectionSplitThreshold returns the member count each half of a prefix needs
// before a split.
func (c *Config) SectionSplitThreshold() int {
	if c.SplitThreshold > 0 {
		return c.SplitThreshold
	}
	return 2 * c.ElderSize
}

// Keyfile returns the full path of the file containing the private key.
func (c *Config) Keyfile() string {
	return filepath.Join(c.RootDir, DefaultKeyfile)
}

// DatabaseDir returns the directory of the badger metadata database.
func (c *Config) DatabaseDir() string {
	return filepath.Join(c.RootDir, DefaultBadgerFile)
}

// ConnectionInfoFile returns the path of the connection info file.
func (c *Config) ConnectionInfoFile() string {
	return filepath.Join(c.RootDir, DefaultConnectionInfoFile)
}

// LogFile returns the path of the log file, or "" when LogDir is unset.
func (c *Config) LogFile() string {
	if c.LogDir == "" {
		return ""
	}
	return filepath.Join(c.LogDir, DefaultLogFile)
}

// SetLogger replaces the root logger.
func (c *Config) SetLogger(l *logrus.Logger) {
	c.logger = l
}

// Logger returns a formatted logrus Entry, with prefix set to "safenode".
func (c *Config) Logger() *logrus.Entry {
	if c.logger == nil {
		c.logger = logrus.New()
		c.logger.Level = LogLevel(c.LogLevel)
		c.logger.Formatter = new(prefixed.TextFormatter)
	}
	return c.logger.WithField("prefix", "safenode")
}

// DefaultRootDir return the default directory name for the node's data based
// on the underlying OS, attempting to respect conventions.
func DefaultRootDir() string {
	// Try to place the data folder in the user's home dir
	home := HomeDir()
	if home != "" {
		if runtime.GOOS == "darwin" {
			return filepath.Join(home, "Library", "Application Support", "SafeNode")
		} else if runtime.GOOS == "windows" {
			return filepath.Join(home, "AppData", "Roaming", "SafeNode")
		} else {
			return filepath.Join(home, ".safe", "node")
		}
	}
	// As we cannot guess a stable location, return empty and handle later
	return ""
}

// HomeDir returns the user's home directory.
func HomeDir() string {
	if home := os.Getenv("HOME"); home != "" {
		return home
	}
	if usr, err := user.Current(); err == nil {
		return usr.HomeDir
	}
	return ""
}

// LogLevel parses a string into a Logrus log level.
func LogLevel(l string) logrus.Level {
	switch l {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	case "fatal":
		return logrus.FatalLevel
	case "panic":
		return logrus.PanicLevel
	default:
		return logrus.DebugLevel
	}
}
