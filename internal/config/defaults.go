package config

const (
	defaultLibraryDir       = "~/media/library"
	defaultOutputDir        = "~/.local/share/reelstream/streams"
	defaultLogDir           = "~/.local/share/reelstream/logs"
	defaultAPIBind          = "127.0.0.1:7321"
	defaultLogFormat        = "console"
	defaultLogLevel         = "info"
	defaultLogRetentionDays = 30

	defaultMaxConcurrent    = 2
	defaultSegmentSeconds   = 4
	defaultStaleTimeout     = 120
	defaultCompletedHistory = 50

	defaultQueuePollInterval  = 5
	defaultErrorRetryInterval = 10
	defaultReconcileInterval  = 300

	// Buffer tier cutoffs mirror the pacing heuristics the platform shipped
	// with; no derivation exists for them, so they stay tunable.
	defaultAggressiveSpeed   = 4.0
	defaultConservativeSpeed = 2.0
	defaultAverageWindow     = 5
	defaultSlowdownWindow    = 3
	defaultSampleCapacity    = 20
)

var defaultSourceExtensions = []string{".mkv", ".mp4", ".avi", ".mov", ".m4v", ".wmv"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			LibraryDir: defaultLibraryDir,
			OutputDir:  defaultOutputDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Transcoding: Transcoding{
			MaxConcurrent:    defaultMaxConcurrent,
			SegmentSeconds:   defaultSegmentSeconds,
			StaleTimeout:     defaultStaleTimeout,
			CompletedHistory: defaultCompletedHistory,
			SourceExtensions: append([]string(nil), defaultSourceExtensions...),
		},
		Buffering: Buffering{
			AggressiveSpeed:   defaultAggressiveSpeed,
			ConservativeSpeed: defaultConservativeSpeed,
			AverageWindow:     defaultAverageWindow,
			SlowdownWindow:    defaultSlowdownWindow,
			SampleCapacity:    defaultSampleCapacity,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			ReconcileInterval:  defaultReconcileInterval,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			JobCompleted:   true,
			JobFailed:      true,
			QueueDrained:   true,
		},
	}
}
