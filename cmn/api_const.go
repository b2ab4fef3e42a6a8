// Package cmn provides common constants, types, and configuration for the
// weavemesh distribution core
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package cmn

import "time"

// line prefixes
const (
	PrefixNormal      = '$'
	PrefixRemove      = '~'
	PrefixUrgent      = '#'
	PrefixQuery       = '?'
	PrefixUrgentQuery = '!'
	PrefixControl     = '^'
)

// control-frame tags (first comma-separated component after '^')
const (
	CtrlLogin       = "L"
	CtrlLoginAck    = "LA"
	CtrlReset       = "RESET"
	CtrlRemoveNodes = "REMOVE_NODES"
	CtrlAck         = "ACK"
	CtrlPing        = "PING"
	CtrlPong        = "PONG"
	CtrlCompressReq = "COMPRESS_REQ"
	CtrlCompressAck = "COMPRESS_ACK"
)

// LosslessSuffix marks a consumed type code as a lossless subscription.
const LosslessSuffix = '+'

// sequencing
const (
	SeqModulo     = 0x10000 // frame sequence counters wrap at this modulus
	ResetThrottle = 3 * time.Minute
)

// lossless delivery
const (
	LosslessRetention = 24 * time.Hour
	AckSweepIval      = time.Minute
)

// dispatch and reset defaults
const (
	DfltEventQueueCap = 200_000
	DfltResetBufCap   = 200_000
	DfltResetRate     = 30_000 // items per minute
)

// channel defaults
const (
	DfltKeepAlive = 60 * time.Second
	DfltPingRate  = 30 * time.Second

	FlushIvalMin    = 20 * time.Millisecond
	FlushIvalMax    = time.Second
	FlushRateWindow = 30 * time.Second
)

// roles, as carried by the login frame
const (
	RoleProducer = "P"
	RoleConsumer = "C"
)

// destination shorthands on the wire
const (
	DestBroadcast = "*" // all interested nodes
	DestNone      = "-" // no other apps (export channels still allowed)
)
