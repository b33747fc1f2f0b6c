// conf/consts.go hard coded constants
package conf

const (
	AppName        = "peekapi"
	ConfigFileName = "config.yaml"
	EnvPrefix      = "PEEKAPI"

	BitDepth    = 16 // Bit depth of snapshot audio
	NumChannels = 1  // Snapshots are mono

	MinSampleRate = 8000
	MaxSampleRate = 192000
	MinDuration   = 1   // seconds
	MaxDuration   = 600 // seconds
	MaxGain       = 100.0
)
