// Copyright 2020 Sebastian Lehmann. All rights reserved.
// Use of this source code is governed by a GNU-style
// license that can be found in the LICENSE file.

package dap

import (
	"github.com/mattn/go-colorable"
	"github.com/sirupsen/logrus"
	prefixed "github.com/x-cray/logrus-prefixed-formatter"
)

var logger *logrus.Logger

func init() {
	logger = logrus.New()
	logger.Out = colorable.NewColorableStdout()
	logger.Formatter = &prefixed.TextFormatter{
		ForceColors:     true,
		FullTimestamp:   true,
		ForceFormatting: true,
	}
}

// SetLogger overrides the package-level logger, letting a host
// application route driver diagnostics into its own log pipeline.
func SetLogger(instance *logrus.Logger) {
	logger = instance
}
