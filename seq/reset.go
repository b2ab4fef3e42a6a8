// Package seq implements per-(channel, object-type) frame sequencing
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package seq

import (
	"strconv"
	"strings"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/codec"
)

// ResetRequest asks producers to replay the current state of one or more
// types. (Ts, ResetSeq) are monotone per origin and suppress propagation
// loops; DeployTime distinguishes a restarted origin whose counters started
// over.
type ResetRequest struct {
	Types      []string // object codes, semicolon-joined on the wire
	Ts         time.Time
	ResetSeq   int64
	Requester  string // requesting app UUID
	Target     string // producing app UUID, or "*" for any
	DeployTime time.Time
	Origin     string // originating app UUID; relays pass it on unchanged
	Params     string
	AppName    string
	AppVersion string
	CoreVer    string
	RemoteAddr string
}

func (r *ResetRequest) Encode() string {
	return codec.BuildControl(cmn.CtrlReset,
		strings.Join(r.Types, ";"),
		codec.FormatTs(r.Ts, codec.PrecMilli),
		strconv.FormatInt(r.ResetSeq, 10),
		r.Requester,
		r.Target,
		codec.FormatTs(r.DeployTime, codec.PrecMilli),
		r.Origin,
		r.Params,
		r.AppName,
		r.AppVersion,
		r.CoreVer,
		r.RemoteAddr,
	)
}

func DecodeResetRequest(args []string) (*ResetRequest, error) {
	if len(args) < 8 {
		return nil, cmn.ParseErrf("reset request: %d args", len(args))
	}
	ts, err := codec.ParseTs(args[1])
	if err != nil {
		return nil, err
	}
	rseq, err := strconv.ParseInt(args[2], 10, 64)
	if err != nil {
		return nil, cmn.ParseErrf("reset seq %q", args[2])
	}
	deploy, err := codec.ParseTs(args[5])
	if err != nil {
		return nil, err
	}
	r := &ResetRequest{
		Types:      strings.Split(args[0], ";"),
		Ts:         ts,
		ResetSeq:   rseq,
		Requester:  args[3],
		Target:     args[4],
		DeployTime: deploy,
		Origin:     args[6],
		Params:     args[7],
	}
	if len(args) > 8 {
		r.AppName = args[8]
	}
	if len(args) > 9 {
		r.AppVersion = args[9]
	}
	if len(args) > 10 {
		r.CoreVer = args[10]
	}
	if len(args) > 11 {
		r.RemoteAddr = args[11]
	}
	return r, nil
}

// ForMe reports whether target addresses the given UUID (or anyone).
func (r *ResetRequest) ForMe(uuid string) bool {
	return r.Target == "*" || r.Target == uuid
}
