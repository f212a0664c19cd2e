// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"

	applog "peakbeat/internal/log"
)

// LoggingTransport writes every message to the debug log.
type LoggingTransport struct{}

// Ensure LoggingTransport satisfies the interface at compile time.
var _ Transport = (*LoggingTransport)(nil)

// NewLoggingTransport creates a new LoggingTransport instance.
func NewLoggingTransport() *LoggingTransport {
	applog.Infof("Transport: Using LoggingTransport")
	return &LoggingTransport{}
}

// Send logs the message as JSON, or raw when it cannot be marshaled.
func (lt *LoggingTransport) Send(data any) error {
	if !applog.Enabled(applog.LevelDebug) {
		return nil
	}
	jsonData, err := json.Marshal(data)
	if err != nil {
		applog.Debugf("LoggingTransport: %T %+v (marshal error: %v)", data, data, err)
		return nil
	}
	applog.Debugf("LoggingTransport: %s", jsonData)
	return nil
}

// Close is a no-op for LoggingTransport.
func (lt *LoggingTransport) Close() error {
	applog.Debugf("LoggingTransport: Close called")
	return nil
}
