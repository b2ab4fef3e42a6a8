// Package cos provides common low-level types and utilities for weavemesh
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package cos

import (
	"crypto/rand"
	"fmt"
	"sync/atomic"

	guuid "github.com/google/uuid"
	"github.com/teris-io/shortid"
)

const (
	// alphabet for generating short UUIDs, see shortid.DEFAULT_ABC
	// NOTE: len(uuidABC) > 0x3f - see GenTie()
	uuidABC = "-5nZJDft6LuzsjGNpPwY7rQa39vehq4i1cV2FROo8yHSlC0BUEdWbIxMmTgKXAk_"

	LenShortID = 9 // as per https://github.com/teris-io/shortid#id-length
	lenNodeID  = 8

	tooLongID = 36 // full-form UUIDs included
)

var (
	sid  *shortid.Shortid
	rtie atomic.Uint32
)

func InitShortID(seed uint64) {
	sid = shortid.MustNew(4 /*worker*/, uuidABC, seed)
}

//
// UUID
//

// GenUUID generates a mesh-unique application UUID. The first and last
// characters are forced alphanumeric so the result survives delimiter escaping.
func GenUUID() (uuid string) {
	var h, t string
	uuid = sid.MustGenerate()
	if !isAlpha(uuid[0]) {
		tie := int(rtie.Add(1))
		h = string(rune('A' + tie%26))
	}
	c := uuid[len(uuid)-1]
	if c == '-' || c == '_' {
		tie := int(rtie.Add(1))
		t = string(rune('a' + tie%26))
	}
	return h + uuid + t
}

// IsValidUUID accepts both short-form mesh UUIDs and full RFC 4122 text form.
func IsValidUUID(uuid string) bool {
	if len(uuid) >= LenShortID && IsAlphaNice(uuid) {
		return true
	}
	_, err := guuid.Parse(uuid)
	return err == nil
}

//
// Node ID
//

func GenNodeID() string { return CryptoRandS(lenNodeID) }

func ValidateNodeID(id string) error {
	if len(id) < lenNodeID {
		return fmt.Errorf("node ID %q is too short", id)
	}
	if !IsAlphaNice(id) {
		return fmt.Errorf("node ID %q is invalid: letters, digits, '-' and '_' only", id)
	}
	return nil
}

func CryptoRandS(n int) string {
	b := make([]byte, n)
	rand.Read(b)
	for i := range b {
		b[i] = uuidABC[1+int(b[i])%(len(uuidABC)-2)]
	}
	return string(b)
}

//
// utility functions
//

func isAlpha(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func IsAlphaNice(s string) bool {
	l := len(s)
	if l > tooLongID {
		return false
	}
	for i := 0; i < l; i++ {
		c := s[i]
		if isAlpha(c) || (c >= '0' && c <= '9') {
			continue
		}
		if c != '-' && c != '_' {
			return false
		}
		if i == 0 || i == l-1 {
			return false
		}
	}
	return true
}

// 3-letter tie breaker (fast)
func GenTie() string {
	tie := rtie.Add(1)
	b0 := uuidABC[tie&0x3f]
	b1 := uuidABC[-tie&0x3f]
	b2 := uuidABC[(tie>>2)&0x3f]
	return string([]byte{b0, b1, b2})
}
