// SPDX-License-Identifier: MIT
package config

import "time"

// Built-in defaults, used when neither the config file nor the environment
// set a value.
const (
	DefaultLogLevel = "info"

	DefaultOutputDevice    = -1 // System default output device.
	DefaultFFTSize         = 1024
	DefaultFFTWindow       = "Hann"
	DefaultLowLatency      = false
	DefaultAssetDir        = "assets"
	DefaultPrefetchBuffers = 4
	DefaultQueueDepth      = 4

	DefaultWebSocketEnabled = false
	DefaultWebSocketAddr    = "127.0.0.1:8080"
	DefaultUDPEnabled       = false
	DefaultUDPTargetAddress = "127.0.0.1:9090"
	DefaultUDPSendInterval  = 33 * time.Millisecond // ~30Hz

	// Hardware and processing limits.
	MinDeviceID = -1
	MaxFFTSize  = 1 << 15
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "config.yaml"
