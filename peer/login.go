// Package peer implements the per-peer control state machine
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package peer

import (
	"strconv"
	"strings"
	"time"

	"github.com/weavemesh/weavemesh/cmn"
	"github.com/weavemesh/weavemesh/cmn/mono"
	"github.com/weavemesh/weavemesh/cmn/nlog"
	"github.com/weavemesh/weavemesh/codec"
	"github.com/weavemesh/weavemesh/seq"
)

// login frame: ^L,role,app_name,app_version,core_version,compress_mask,alert_flag,app_uuid,user_id
// answer:      ^LA,OK|FAIL,role,app_name,app_version,core_version,compress_mask,alert_flag,app_uuid,user_id

func (h *Handler) sendLogin() {
	name, ver, core := h.sink.AppInfo()
	h.loginAt.Store(mono.NanoTime())
	h.state.Store(int32(LoginSent))
	h.SendControl(codec.BuildControl(cmn.CtrlLogin,
		h.cfg.LocalRole, name, ver, core,
		compressMask(h.cfg.Compress), alertMask(h.cfg.AlertFlag),
		h.sink.AppUUID(), h.sink.UserID()), true)
}

func compressMask(on bool) string {
	if on {
		return "1"
	}
	return "0"
}

func alertMask(on bool) string { return compressMask(on) }

func (h *Handler) handleControl(line string) {
	tag, args, err := codec.ParseControl(line)
	if err != nil {
		nlog.Warnf("%s: %v", h.cfg.Name, err)
		return
	}
	switch tag {
	case cmn.CtrlLogin:
		h.handleLogin(args)
	case cmn.CtrlLoginAck:
		h.handleLoginAck(args)
	case cmn.CtrlReset:
		h.handleReset(args)
	case cmn.CtrlRemoveNodes:
		h.handleRemoveNodes(args)
	case cmn.CtrlAck:
		h.handleAck(args)
	case cmn.CtrlCompressReq:
		// agree, then compress our own output behind the sentinel
		h.SendControl(codec.BuildControl(cmn.CtrlCompressAck), true)
		h.conn.CompressOutput()
	case cmn.CtrlCompressAck:
		h.conn.CompressOutput()
	default:
		nlog.Warnf("%s: unknown control %q", h.cfg.Name, tag)
	}
}

func parseInfo(role string, args []string) Info {
	info := Info{Role: role, ConnectedSince: time.Now()}
	if len(args) > 1 {
		info.AppName = args[1]
	}
	if len(args) > 2 {
		info.AppVersion = args[2]
	}
	if len(args) > 3 {
		info.CoreVersion = args[3]
	}
	if len(args) > 4 {
		info.Compression = args[4] == "1"
	}
	if len(args) > 6 {
		info.UUID = args[6]
	}
	if len(args) > 7 {
		info.UserID = args[7]
	}
	return info
}

func (h *Handler) handleLogin(args []string) {
	if len(args) < 7 {
		nlog.Warnf("%s: short login", h.cfg.Name)
		return
	}
	remoteRole := args[0]
	// only consumer-to-producer: equal roles cannot talk
	if remoteRole == h.cfg.LocalRole {
		nlog.Warnf("%s: login refused: both sides are %q", h.cfg.Name, remoteRole)
		h.SendControl(codec.BuildControl(cmn.CtrlLoginAck, "FAIL"), true)
		h.Disconnect(cmn.LoginErrf("role %q", remoteRole).Error())
		return
	}
	info := parseInfo(remoteRole, args)
	h.infoMu.Lock()
	h.info = info
	h.infoMu.Unlock()

	name, ver, core := h.sink.AppInfo()
	h.SendControl(codec.BuildControl(cmn.CtrlLoginAck,
		"OK", h.cfg.LocalRole, name, ver, core,
		compressMask(h.cfg.Compress), alertMask(h.cfg.AlertFlag),
		h.sink.AppUUID(), h.sink.UserID()), true)
	h.loggedIn(info)

	if h.cfg.Compress && info.Compression {
		h.SendControl(codec.BuildControl(cmn.CtrlCompressReq), true)
	}
}

func (h *Handler) handleLoginAck(args []string) {
	if len(args) < 1 {
		return
	}
	if args[0] != "OK" {
		nlog.Warnf("%s: login refused by peer", h.cfg.Name)
		h.Disconnect("login refused")
		return
	}
	var info Info
	if len(args) > 1 {
		info = parseInfo(args[1], args[1:])
	}
	h.infoMu.Lock()
	h.info = info
	h.infoMu.Unlock()
	h.loggedIn(info)
}

func (h *Handler) loggedIn(info Info) {
	h.state.Store(int32(LoggedIn))
	if info.UUID != "" {
		h.nodes.add(info.UUID)
	}
	h.openTrafficLog(info)
	nlog.Infof("%s: logged in with %s %s (%s)", h.cfg.Name, info.AppName, info.AppVersion, info.UUID)
	h.sink.PeerReady(h)
	h.state.Store(int32(Monitoring))

	// a consuming channel bootstraps with a reset request for everything
	// it subscribes to
	if h.cfg.LocalRole == cmn.RoleConsumer {
		if consumed := h.sink.ConsumedTypes(); len(consumed) > 0 {
			h.RequestReset(consumed, "*")
		}
	}
}

// per-channel traffic logs live under {Producers|Consumers}/{appname.address[.user]}/
func (h *Handler) openTrafficLog(info Info) {
	if !h.cfg.LogTraffic {
		return
	}
	kind := "Producers"
	if info.Role == cmn.RoleConsumer {
		kind = "Consumers"
	}
	dir := info.AppName
	if info.RemoteAddr != "" {
		dir += "." + info.RemoteAddr
	}
	if info.UserID != "" {
		dir += "." + info.UserID
	}
	sub, err := nlog.Sub(kind + "/" + dir)
	if err != nil {
		nlog.Warnf("%s: traffic log: %v", h.cfg.Name, err)
		return
	}
	h.sub = sub
}

func (h *Handler) handleReset(args []string) {
	req, err := seq.DecodeResetRequest(args)
	if err != nil {
		nlog.Warnf("%s: %v", h.cfg.Name, err)
		return
	}
	h.sink.HandleResetRequest(h, req)
}

func (h *Handler) handleRemoveNodes(args []string) {
	if len(args) < 1 || args[0] == "" {
		return
	}
	uuids := strings.Split(args[0], ";")
	h.nodes.remove(uuids)
	h.sink.HandleRemoveNodes(h, uuids)
}

// ^ACK,type,origin_uuid,destination_uuid,ack_seq
func (h *Handler) handleAck(args []string) {
	if len(args) < 4 {
		nlog.Warnf("%s: short ack", h.cfg.Name)
		return
	}
	ackSeq, err := strconv.ParseInt(args[3], 10, 64)
	if err != nil {
		nlog.Warnf("%s: ack seq %q", h.cfg.Name, args[3])
		return
	}
	h.sink.HandleAck(h, args[0], args[1], args[2], ackSeq)
}
