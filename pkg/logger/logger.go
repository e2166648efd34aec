// Copyright 2021 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package logger

import (
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	LogContainer     logContainer
	loggerInit       sync.Once
	simpleLoggerInit sync.Once
)

type logContainer struct {
	mu           sync.Mutex
	file         string
	level        zapcore.Level
	logger       *zap.Logger
	simpleLogger *zap.SugaredLogger
}

// Configure sets the log file and level. It has to be called before the
// first GetLogger to have any effect. An empty file logs to the console
// only.
func (l *logContainer) Configure(file string, level zapcore.Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.file = file
	l.level = level
}

// GetLogger returns the pointer to the logger and creates one if none exists
func (l *logContainer) GetLogger() *zap.Logger {
	loggerInit.Do(func() {
		l.mu.Lock()
		defer l.mu.Unlock()
		core, err := getCombinedCore(l.file, l.level)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging to console only: %v\n", err)
		}
		l.logger = zap.New(core)
	})
	return l.logger
}

// GetSimpleLogger returns the pointer to the sugared logger and creates one
// if none exists
func (l *logContainer) GetSimpleLogger() *zap.SugaredLogger {
	simpleLoggerInit.Do(func() {
		l.simpleLogger = l.GetLogger().Sugar()
	})
	return l.simpleLogger
}

// String mirrors zap.String
func (l *logContainer) String(key string, val string) zap.Field {
	return zap.String(key, val)
}

// Int mirrors zap.Int
func (l *logContainer) Int(key string, val int) zap.Field {
	return zap.Int(key, val)
}

func getConsoleEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	return zapcore.NewConsoleEncoder(encoderConfig)
}

func getJsonEncoder() zapcore.Encoder {
	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.EncodeTime = zapcore.EpochTimeEncoder
	encoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewJSONEncoder(encoderConfig)
}

func getLogWriter(file string) (zapcore.WriteSyncer, error) {
	f, err := os.OpenFile(file, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("unable to open logfile: %v", err)
	}
	return zapcore.AddSync(f), nil
}

func getConsoleCore(level zapcore.Level) zapcore.Core {
	return zapcore.NewCore(getConsoleEncoder(), zapcore.Lock(os.Stderr), level)
}

func getCombinedCore(file string, level zapcore.Level) (zapcore.Core, error) {
	if file == "" {
		return getConsoleCore(level), nil
	}
	w, err := getLogWriter(file)
	if err != nil {
		return getConsoleCore(level), err
	}
	return zapcore.NewTee(getConsoleCore(level), zapcore.NewCore(getJsonEncoder(), w, level)), nil
}
