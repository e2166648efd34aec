// Copyright 2026 the u-root Authors. All rights reserved
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hwerr holds the error taxonomy shared by the clock tree and the
// access-control layer.
package hwerr

import (
	"errors"
	"fmt"
)

// Kind classifies why a hardware operation was refused. A Kind is itself
// an error so callers can write errors.Is(err, hwerr.Locked).
type Kind int

const (
	Unknown Kind = iota
	InvalidArgument
	InvalidState
	ResourceInUse
	ChangeInProgress
	SourceDisabled
	NotLocked
	NotPermitted
	AlreadyHeld
	Locked
	Timeout
)

var kindNames = map[Kind]string{
	Unknown:          "unknown error",
	InvalidArgument:  "invalid argument",
	InvalidState:     "invalid state",
	ResourceInUse:    "resource in use",
	ChangeInProgress: "change in progress",
	SourceDisabled:   "source disabled",
	NotLocked:        "pll not locked",
	NotPermitted:     "not permitted",
	AlreadyHeld:      "semaphore already held",
	Locked:           "configuration locked",
	Timeout:          "timeout",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

func (k Kind) Error() string {
	return k.String()
}

// Error is a refused operation on one clock node or access resource.
type Error struct {
	Op   string
	Node string
	Kind Kind
	Msg  string
}

func (e *Error) Error() string {
	s := e.Op
	if e.Node != "" {
		s += " " + e.Node
	}
	s += ": " + e.Kind.String()
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	return s
}

// Is reports whether target is the Kind of e.
func (e *Error) Is(target error) bool {
	k, ok := target.(Kind)
	return ok && k == e.Kind
}

// New returns an *Error with a formatted message.
func New(op, node string, k Kind, format string, args ...interface{}) error {
	return &Error{Op: op, Node: node, Kind: k, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the Kind carried by err, or Unknown.
func KindOf(err error) Kind {
	if err == nil {
		return Unknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k Kind
	if errors.As(err, &k) {
		return k
	}
	return Unknown
}
