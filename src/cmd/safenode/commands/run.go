package commands

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/maidsafe/temp-safe-network-sub012/src/common"
	"github.com/maidsafe/temp-safe-network-sub012/src/config"
	"github.com/maidsafe/temp-safe-network-sub012/src/crypto/keys"
	"github.com/maidsafe/temp-safe-network-sub012/src/net"
	"github.com/maidsafe/temp-safe-network-sub012/src/node"
	"github.com/maidsafe/temp-safe-network-sub012/src/service"
	"github.com/rifflock/lfshook"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

// joinAttempts is the number of join timeouts a new node waits for before
// giving up on the network.
const joinAttempts = 3

// configName is the name, without extension, of the optional config file in
// the root dir.
const configName = "safenode"

//NewRunCmd returns the command that starts a node
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "run",
		Short:   "Run node",
		PreRunE: loadConfig,
		RunE:    runNode,
	}
	AddRunFlags(cmd)
	return cmd
}

/*******************************************************************************
* RUN
*******************************************************************************/

func runNode(cmd *cobra.Command, args []string) error {
	logger := _config.Logger()

	if _config.ClearData {
		if err := clearData(_config.RootDir); err != nil {
			return err
		}
	}

	key, err := keys.NewSimpleKeyfile(_config.Keyfile()).ReadOrCreateKey()
	if err != nil {
		return err
	}

	comm, err := newComm(_config, logger)
	if err != nil {
		return common.NewError(common.PeerUnreachable, "binding %s: %v", _config.ListenAddr(), err)
	}

	n, err := node.NewNode(_config, node.NewValidator(key, comm.LocalAddr()), comm)
	if err != nil {
		comm.Close()
		return err
	}
	defer n.Shutdown()

	if err := n.Init(); err != nil {
		return err
	}
	n.RunAsync()

	go logEvents(n, logger)

	if _config.First == "" {
		ctx, cancel := context.WithTimeout(context.Background(), joinAttempts*_config.JoinTimeout)
		err := n.WaitJoined(ctx)
		cancel()
		if err != nil {
			logger.WithError(err).Error("Could not join the network")
			return err
		}
	}

	if !_config.NoService {
		go service.NewService(_config.ServiceAddr, n, logger).Serve()
	}

	logger.WithField("node", n).Info("Running")

	//Prepare sigCh to relay SIGINT and SIGTERM system calls
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	<-sigCh

	logger.Info("Shutting down")

	return nil
}

func newComm(conf *config.Config, logger *logrus.Entry) (net.Comm, error) {
	switch conf.Transport {
	case "quic":
		comm, err := net.NewQuicComm(
			conf.ListenAddr(),
			conf.PublicAddr,
			conf.TCPTimeout,
			conf.InboxCapacity,
			logger,
		)
		if err != nil {
			return nil, err
		}
		return comm, nil
	default:
		comm, err := net.NewTCPComm(
			conf.ListenAddr(),
			conf.PublicAddr,
			conf.MaxPool,
			conf.TCPTimeout,
			conf.InboxCapacity,
			logger,
		)
		if err != nil {
			return nil, err
		}
		go comm.Listen()
		return comm, nil
	}
}

// clearData removes everything under root but the node key and the config
// file.
func clearData(root string) error {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		switch e.Name() {
		case config.DefaultKeyfile, configName + ".toml":
			continue
		}
		if err := os.RemoveAll(filepath.Join(root, e.Name())); err != nil {
			return err
		}
	}
	return nil
}

func logEvents(n *node.Node, logger *logrus.Entry) {
	for e := range n.Events() {
		logger.WithField("event", e).Info("Event")
	}
}

/*******************************************************************************
* CONFIG
*******************************************************************************/

//AddRunFlags adds flags to the Run command
func AddRunFlags(cmd *cobra.Command) {

	cmd.Flags().String("root-dir", _config.RootDir, "Top-level directory for the node key and data")
	cmd.Flags().String("log-dir", _config.LogDir, "Directory of the log file, none when empty")
	cmd.Flags().String("log", _config.LogLevel, "debug, info, warn, error, fatal, panic")

	// Network
	cmd.Flags().String("first", _config.First, "Start a new network, listening on this IP:Port")
	cmd.Flags().StringP("local-addr", "l", _config.LocalAddr, "Listen IP:Port")
	cmd.Flags().StringP("public-addr", "a", _config.PublicAddr, "Advertised IP:Port, when the listen address is not reachable")
	cmd.Flags().StringSliceP("bootstrap-peers", "b", _config.BootstrapPeers, "IP:Port of nodes to bootstrap from")
	cmd.Flags().String("transport", _config.Transport, "tcp or quic")
	cmd.Flags().DurationP("timeout", "t", _config.TCPTimeout, "Dial and write timeout")
	cmd.Flags().Int("max-pool", _config.MaxPool, "Connection pool size max")
	cmd.Flags().Int("inbox-capacity", _config.InboxCapacity, "Incoming messages buffered before the oldest is dropped")
	cmd.Flags().Bool("skip-auto-port-forwarding", _config.SkipAutoPortForwarding, "Accepted for compatibility, port forwarding is never attempted")

	// Service
	cmd.Flags().StringP("service-listen", "s", _config.ServiceAddr, "Listen IP:Port for HTTP service")
	cmd.Flags().Bool("no-service", _config.NoService, "Disable the HTTP service")

	// Storage
	cmd.Flags().Uint64("max-capacity", _config.MaxCapacity, "Bytes the data stores may use")
	cmd.Flags().Float64("storage-threshold", _config.StorageThreshold, "Used space ratio at which the node reports itself full")
	cmd.Flags().Bool("clear-data", _config.ClearData, "Remove the data stores before starting")
	cmd.Flags().Bool("store", _config.Store, "Keep chunk metadata in badgerDB instead of in memory")

	// Section
	cmd.Flags().Int("elder-size", _config.ElderSize, "Number of elders of a section")
	cmd.Flags().Int("split-threshold", _config.SplitThreshold, "Members each half of a prefix needs before a split, twice elder-size when 0")
	cmd.Flags().Int("chunk-copy-count", _config.ChunkCopyCount, "Number of adults holding each chunk")
	cmd.Flags().Uint64("genesis-amount", _config.GenesisAmount, "Tokens credited to the genesis node")
	cmd.Flags().Bool("joins-allowed", _config.JoinsAllowed, "Whether a new network accepts joining nodes")
	cmd.Flags().Int("msg-cache-size", _config.MsgCacheSize, "Number of message ids kept for deduplication")

	// Timers
	cmd.Flags().Duration("request-timeout", _config.RequestTimeout, "Timeout of requests to adults")
	cmd.Flags().Duration("dkg-timeout", _config.DkgTimeout, "Timeout of a key generation")
	cmd.Flags().DurationP("join-timeout", "j", _config.JoinTimeout, "Delay before join requests are resent")
	cmd.Flags().Duration("probe-interval", _config.ProbeInterval, "Period of anti-entropy probes")
	cmd.Flags().Duration("fault-check-interval", _config.FaultCheckInterval, "Period of fault checks")
	cmd.Flags().Duration("persist-interval", _config.PersistInterval, "Period at which network knowledge is written")
}

func loadConfig(cmd *cobra.Command, args []string) error {

	err := bindFlagsLoadViper(cmd)
	if err != nil {
		return err
	}

	setupLogger(_config)

	if err := _config.Validate(); err != nil {
		return err
	}

	_config.Logger().WithFields(logrus.Fields{
		"RootDir":        _config.RootDir,
		"LogDir":         _config.LogDir,
		"LogLevel":       _config.LogLevel,
		"First":          _config.First,
		"LocalAddr":      _config.LocalAddr,
		"PublicAddr":     _config.PublicAddr,
		"BootstrapPeers": _config.BootstrapPeers,
		"Transport":      _config.Transport,
		"MaxCapacity":    _config.MaxCapacity,
		"ClearData":      _config.ClearData,
		"ServiceAddr":    _config.ServiceAddr,
		"NoService":      _config.NoService,
		"ElderSize":      _config.ElderSize,
		"ChunkCopyCount": _config.ChunkCopyCount,
		"Store":          _config.Store,
	}).Debug("RUN")

	return nil
}

// Bind all flags and read the config into viper
func bindFlagsLoadViper(cmd *cobra.Command) error {
	// Register flags with viper. Include flags from this command and all other
	// persistent flags from the parent
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	// first unmarshal to read from CLI flags
	if err := viper.Unmarshal(_config); err != nil {
		return common.NewError(common.Configuration, "%v", err)
	}

	// look for config file in [root-dir]/safenode.toml (.json, .yaml also work)
	viper.SetConfigName(configName)
	viper.AddConfigPath(_config.RootDir)

	// If a config file is found, read it in.
	if err := viper.ReadInConfig(); err == nil {
		_config.Logger().Debugf("Using config file: %s", viper.ConfigFileUsed())
	} else if _, ok := err.(viper.ConfigFileNotFoundError); ok {
		_config.Logger().Debugf("No config file found in: %s", _config.RootDir)
	} else {
		return common.NewError(common.Configuration, "%v", err)
	}

	// second unmarshal to read from config file
	if err := viper.Unmarshal(_config); err != nil {
		return common.NewError(common.Configuration, "%v", err)
	}
	return nil
}

// setupLogger logs to stderr at the configured level and, when a log dir is
// set, copies every entry to the log file.
func setupLogger(conf *config.Config) {
	logger := logrus.New()
	logger.Level = config.LogLevel(conf.LogLevel)
	logger.Formatter = new(prefixed.TextFormatter)

	if path := conf.LogFile(); path != "" {
		if err := os.MkdirAll(conf.LogDir, 0700); err != nil {
			logger.WithError(err).Warn("Failed to create log dir, using stderr only")
		} else {
			pathMap := lfshook.PathMap{}
			for _, l := range logrus.AllLevels {
				pathMap[l] = path
			}
			logger.Hooks.Add(lfshook.NewHook(pathMap, &logrus.JSONFormatter{}))
		}
	}

	conf.SetLogger(logger)
}
