package config

const (
	defaultJournalPath = "~/.local/share/webpify/journal.db"
	defaultLogDir      = "~/.local/share/webpify/logs"
	defaultLogFormat   = "console"
	defaultLogLevel    = "info"

	// Lossy WebP at quality 80 with medium compression effort.
	defaultQuality  = 80
	defaultEffort   = 4
	defaultLossless = false
	defaultOptimize = true

	// defaultWorkers of 0 means size the pool to the detected CPU count.
	defaultWorkers = 0

	// OutputDirName is the directory created next to (or inside) the input
	// to hold converted files.
	OutputDirName = "webp"

	// SourceExtension is the only input format webpify converts.
	SourceExtension = ".png"

	// TargetExtension is the container written for every converted file.
	TargetExtension = ".webp"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			JournalPath: defaultJournalPath,
			LogDir:      defaultLogDir,
		},
		Convert: Convert{
			Quality:  defaultQuality,
			Effort:   defaultEffort,
			Lossless: defaultLossless,
			Optimize: defaultOptimize,
			Workers:  defaultWorkers,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		UI: UI{
			Progress:    true,
			PauseOnExit: false,
		},
	}
}
