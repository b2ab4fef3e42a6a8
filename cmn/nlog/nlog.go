// Package nlog - weavemesh logger: buffering, timestamping, severity filtering,
// flushing and per-channel sub-logs
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package nlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

const (
	bufSize       = 64 * 1024
	flushInterval = 10 * time.Second
)

var sevText = [...]string{"I", "W", "E"}

type nlog struct {
	file *bufio.Writer
	fh   *os.File
	mw   sync.Mutex
}

var (
	logDir    string
	title     string
	verbosity atomic.Int32
	toStderr  bool

	out      nlog
	sublogs  sync.Map // dir => *nlog
	onceInit sync.Once
)

// Setup initializes the main log file under dir; empty dir logs to stderr only.
func Setup(dir, role string, level int) error {
	logDir, title = dir, role
	verbosity.Store(int32(level))
	if dir == "" {
		toStderr = true
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	fh, err := os.OpenFile(filepath.Join(dir, role+".log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	out.fh, out.file = fh, bufio.NewWriterSize(fh, bufSize)
	return nil
}

func SetVerbosity(level int) { verbosity.Store(int32(level)) }

func Verbose() bool { return verbosity.Load() > 0 }

func log(sev severity, depth int, format string, args ...any) {
	onceInit.Do(func() {
		if out.file == nil {
			toStderr = true
		}
	})
	line := sprintf(sev, depth+1, format, args...)
	if toStderr || sev >= sevWarn {
		os.Stderr.WriteString(line)
	}
	if out.file != nil {
		out.mw.Lock()
		out.file.WriteString(line)
		out.mw.Unlock()
	}
}

func sprintf(sev severity, depth int, format string, args ...any) string {
	var (
		now      = time.Now()
		_, fn, l = caller(depth + 1)
		msg      string
	)
	if format == "" {
		msg = fmt.Sprintln(args...)
	} else {
		msg = fmt.Sprintf(format, args...)
	}
	if !strings.HasSuffix(msg, "\n") {
		msg += "\n"
	}
	return fmt.Sprintf("%s %s %s:%d %s", sevText[sev], now.Format("15:04:05.000000"), fn, l, msg)
}

func caller(depth int) (pc uintptr, fn string, line int) {
	pc, file, line, ok := runtime.Caller(depth + 1)
	if !ok {
		return 0, "???", 0
	}
	return pc, filepath.Base(file), line
}

// Flush writes out buffered content; sync forces an fsync as well.
func Flush(sync bool) {
	out.mw.Lock()
	if out.file != nil {
		out.file.Flush()
		if sync && out.fh != nil {
			out.fh.Sync()
		}
	}
	out.mw.Unlock()
	sublogs.Range(func(_, v any) bool {
		sl := v.(*nlog)
		sl.mw.Lock()
		if sl.file != nil {
			sl.file.Flush()
		}
		sl.mw.Unlock()
		return true
	})
}

//
// sub-logs: per-channel traffic files, e.g. Producers/appname.addr.user/traffic.log
//

type SubLog struct{ n *nlog }

func Sub(relDir string) (SubLog, error) {
	if logDir == "" {
		return SubLog{}, nil
	}
	if v, ok := sublogs.Load(relDir); ok {
		return SubLog{v.(*nlog)}, nil
	}
	dir := filepath.Join(logDir, relDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return SubLog{}, err
	}
	fh, err := os.OpenFile(filepath.Join(dir, "traffic.log"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return SubLog{}, err
	}
	n := &nlog{fh: fh, file: bufio.NewWriterSize(fh, bufSize)}
	actual, loaded := sublogs.LoadOrStore(relDir, n)
	if loaded {
		fh.Close()
	}
	return SubLog{actual.(*nlog)}, nil
}

func (s SubLog) Println(a ...any) {
	if s.n == nil {
		return
	}
	s.n.mw.Lock()
	s.n.file.WriteString(time.Now().Format("15:04:05.000") + " " + fmt.Sprintln(a...))
	s.n.mw.Unlock()
}
