// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2017 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package logger provides per-subsystem leveled loggers for the mempool
// module, following the same InitLogRotators/SetLogLevel/SubsystemTags shape
// used throughout the teacher tree this module was grown from.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"
)

// LogRotator is the rotating file sink. It should be closed on application
// shutdown. Until InitLogRotators is called, log output goes to stdout only.
var LogRotator *rotator.Rotator

var initiated = false

type stdoutAndRotatorWriter struct{}

func (stdoutAndRotatorWriter) Write(p []byte) (int, error) {
	os.Stdout.Write(p)
	if initiated && LogRotator != nil {
		LogRotator.Write(p)
	}
	return len(p), nil
}

var backendLog = btclog.NewBackend(stdoutAndRotatorWriter{})

var (
	mpolLog = backendLog.Logger("MPOL")
	blomLog = backendLog.Logger("BLOM")
	syncLog = backendLog.Logger("SYNC")
	walkLog = backendLog.Logger("WALK")
	storLog = backendLog.Logger("STOR")
)

// SubsystemTags is an enum of all subsystem tags used by this module.
var SubsystemTags = struct {
	MPOL, BLOM, SYNC, WALK, STOR string
}{
	MPOL: "MPOL",
	BLOM: "BLOM",
	SYNC: "SYNC",
	WALK: "WALK",
	STOR: "STOR",
}

var subsystemLoggers = map[string]btclog.Logger{
	SubsystemTags.MPOL: mpolLog,
	SubsystemTags.BLOM: blomLog,
	SubsystemTags.SYNC: syncLog,
	SubsystemTags.WALK: walkLog,
	SubsystemTags.STOR: storLog,
}

// InitLogRotators initializes the log rotator to write rolling log files
// alongside stdout. It must be called before relying on file-based logs.
func InitLogRotators(logFile string) error {
	logDir, _ := filepath.Split(logFile)
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0700); err != nil {
			return fmt.Errorf("failed to create log directory: %s", err)
		}
	}
	r, err := rotator.New(logFile, 10*1024*1024, false, 3)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %s", err)
	}
	LogRotator = r
	initiated = true
	return nil
}

// Get returns the logger for a given subsystem tag.
func Get(tag string) (logger btclog.Logger, ok bool) {
	logger, ok = subsystemLoggers[tag]
	return
}

// SetLogLevel sets the logging level for the given subsystem. Invalid
// subsystems are ignored.
func SetLogLevel(subsystemID string, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// SetLogLevels sets the log level for every subsystem logger.
func SetLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		SetLogLevel(subsystemID, logLevel)
	}
}

// SupportedSubsystems returns a sorted slice of the supported subsystems.
func SupportedSubsystems() []string {
	subsystems := make([]string, 0, len(subsystemLoggers))
	for subsysID := range subsystemLoggers {
		subsystems = append(subsystems, subsysID)
	}
	sort.Strings(subsystems)
	return subsystems
}

// ParseAndSetDebugLevels parses a debug level string of the form
// "level" or "SUBSYS=level,SUBSYS=level,..." and applies it.
func ParseAndSetDebugLevels(debugLevel string) error {
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		if !validLogLevel(debugLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", debugLevel)
		}
		SetLogLevels(debugLevel)
		return nil
	}

	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			return fmt.Errorf("the specified debug level contains an invalid subsystem/level pair [%s]", logLevelPair)
		}
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]
		if _, exists := Get(subsysID); !exists {
			return fmt.Errorf("the specified subsystem [%s] is invalid -- supported subsystems %s",
				subsysID, strings.Join(SupportedSubsystems(), ", "))
		}
		if !validLogLevel(logLevel) {
			return fmt.Errorf("the specified debug level [%s] is invalid", logLevel)
		}
		SetLogLevel(subsysID, logLevel)
	}
	return nil
}

func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// PickNoun returns the singular or plural form of a noun depending on n.
func PickNoun(n uint64, singular, plural string) string {
	if n == 1 {
		return singular
	}
	return plural
}

var _ io.Writer = stdoutAndRotatorWriter{}
