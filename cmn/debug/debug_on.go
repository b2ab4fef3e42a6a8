//go:build debug

// Package debug provides debug-build assertions
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package debug

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/weavemesh/weavemesh/cmn/nlog"
)

func ON() bool { return true }

func Infof(format string, a ...any) { nlog.InfoDepth(1, fmt.Sprintf(format, a...)) }

func Func(f func()) { f() }

func Assert(cond bool, a ...any) {
	if !cond {
		if len(a) > 0 {
			panic("DEBUG PANIC: " + fmt.Sprint(a...))
		}
		panic("DEBUG PANIC")
	}
}

func AssertFunc(f func() bool, a ...any) { Assert(f(), a...) }

func AssertNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func Assertf(cond bool, format string, a ...any) {
	if !cond {
		panic("DEBUG PANIC: " + fmt.Sprintf(format, a...))
	}
}

func AssertMutexLocked(m *sync.Mutex) {
	state := reflect.ValueOf(m).Elem().FieldByName("state")
	Assert(state.Int()&1 == 1, "mutex not locked")
}

func AssertRWMutexLocked(m *sync.RWMutex) {
	w := reflect.ValueOf(m).Elem().FieldByName("w")
	state := w.FieldByName("state")
	Assert(state.Int()&1 == 1, "rwmutex not locked")
}

func AssertRWMutexRLocked(m *sync.RWMutex) {
	rc := reflect.ValueOf(m).Elem().FieldByName("readerCount").FieldByName("v")
	Assert(rc.Int() > 0, "rwmutex not rlocked")
}
