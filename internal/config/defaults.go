package config

const (
	defaultStateDir         = "~/.local/share/xtap"
	defaultLogDir           = "~/.local/share/xtap/logs"
	defaultIngestBind       = "127.0.0.1:17382"
	defaultBatchSize        = 50
	defaultFlushInterval    = 25
	defaultMaxLogLines      = 500
	defaultDedupCapacity    = 50000
	defaultDaemonAddress    = "127.0.0.1:17381"
	defaultHostSocket       = "~/.xtap/host.sock"
	defaultSendTimeout      = 10
	defaultProbeTimeout     = 3
	defaultBootstrapTimeout = 5
	defaultDisconnectWindow = 10
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Ingest: Ingest{
			Bind: defaultIngestBind,
		},
		Capture: Capture{
			Enabled: true,
		},
		Batch: Batch{
			Size:          defaultBatchSize,
			FlushInterval: defaultFlushInterval,
			MaxLogLines:   defaultMaxLogLines,
		},
		Dedup: Dedup{
			Capacity: defaultDedupCapacity,
		},
		Transport: Transport{
			DaemonAddress:    defaultDaemonAddress,
			HostSocket:       defaultHostSocket,
			SendTimeout:      defaultSendTimeout,
			ProbeTimeout:     defaultProbeTimeout,
			BootstrapTimeout: defaultBootstrapTimeout,
			DisconnectWindow: defaultDisconnectWindow,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
