// Package hk provides mechanism for registering cleanup
// functions which are invoked at specified intervals.
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package hk_test

import (
	"sync/atomic"
	"time"

	"github.com/weavemesh/weavemesh/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("should register the callback and fire it", func() {
		var fired atomic.Bool
		hk.Reg("fire", func() time.Duration {
			fired.Store(true)
			return time.Second
		})

		time.Sleep(20 * time.Millisecond)
		Expect(fired.Load()).To(BeTrue()) // fires at the start, no initial interval
		fired.Store(false)

		time.Sleep(500 * time.Millisecond)
		Expect(fired.Load()).To(BeFalse())

		time.Sleep(600 * time.Millisecond)
		Expect(fired.Load()).To(BeTrue())
		hk.Unreg("fire")
	})

	It("should register the callback and fire it after initial interval", func() {
		var fired atomic.Bool
		hk.Reg("initial", func() time.Duration {
			fired.Store(true)
			return time.Second
		}, time.Second)

		time.Sleep(500 * time.Millisecond)
		Expect(fired.Load()).To(BeFalse())

		time.Sleep(600 * time.Millisecond)
		Expect(fired.Load()).To(BeTrue())
		hk.Unreg("initial")
	})

	It("should unregister callback", func() {
		fired := make([]atomic.Bool, 2)
		hk.Reg("bar", func() time.Duration {
			fired[0].Store(true)
			return 400 * time.Millisecond
		}, 400*time.Millisecond)
		hk.Reg("foo", func() time.Duration {
			fired[1].Store(true)
			return 200 * time.Millisecond
		}, 200*time.Millisecond)

		time.Sleep(500 * time.Millisecond)
		Expect(fired[0].Load() && fired[1].Load()).To(BeTrue())

		fired[0].Store(false)
		fired[1].Store(false)
		hk.Unreg("foo")

		time.Sleep(time.Second)
		Expect(fired[1].Load()).To(BeFalse())
		Expect(fired[0].Load()).To(BeTrue())

		hk.Unreg("bar")
	})

	It("should self-unregister when the callback returns a negative interval", func() {
		var cnt atomic.Int32
		hk.Reg("once", func() time.Duration {
			cnt.Add(1)
			return -1
		})
		time.Sleep(300 * time.Millisecond)
		Expect(cnt.Load()).To(BeEquivalentTo(1))
	})
})
