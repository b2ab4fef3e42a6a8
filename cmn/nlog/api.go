// Package nlog - weavemesh logger: buffering, timestamping, severity filtering,
// flushing and per-channel sub-logs
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package nlog

func Infoln(a ...any)  { log(sevInfo, 1, "", a...) }
func Warnln(a ...any)  { log(sevWarn, 1, "", a...) }
func Errorln(a ...any) { log(sevErr, 1, "", a...) }

func Infof(format string, a ...any)  { log(sevInfo, 1, format, a...) }
func Warnf(format string, a ...any)  { log(sevWarn, 1, format, a...) }
func Errorf(format string, a ...any) { log(sevErr, 1, format, a...) }

func InfoDepth(depth int, a ...any)  { log(sevInfo, depth+1, "", a...) }
func ErrorDepth(depth int, a ...any) { log(sevErr, depth+1, "", a...) }
