package elog

/**
 * SPDX-License-Identifier: Apache-2.0
 * Copyright 2020 vorteil.io Pty Ltd
 */

// View is the logging interface handed to library code.
type View interface {
	Debugf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Printf(format string, args ...interface{})
	Warnf(format string, args ...interface{})
}

type discard struct{}

func (d *discard) Debugf(format string, args ...interface{}) {}
func (d *discard) Errorf(format string, args ...interface{}) {}
func (d *discard) Infof(format string, args ...interface{})  {}
func (d *discard) Printf(format string, args ...interface{}) {}
func (d *discard) Warnf(format string, args ...interface{})  {}

// Discard is a View that drops everything.
var Discard View = &discard{}

// OrDiscard returns log, or Discard if log is nil.
func OrDiscard(log View) View {
	if log == nil {
		return Discard
	}
	return log
}
