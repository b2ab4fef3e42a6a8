// Package cmn provides common constants, types, and configuration for the
// weavemesh distribution core
/*
 * Copyright (c) 2021-2026, WeaveMesh Systems, Inc. All rights reserved.
 */
package cmn

import (
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

// Config is the key-value provider the core consumes its settings through.
// Channel definitions use numbered keys: producer-1, consumer-1, import-1,
// server-1, and so on. A missing key reads as "".
type Config interface {
	Get(key string) string
}

type (
	// MapConfig - in-memory provider (tests, embedding)
	MapConfig map[string]string

	// FileConfig - flat JSON object, string values
	FileConfig struct {
		kv   map[string]string
		path string
	}
)

func (m MapConfig) Get(key string) string { return m[key] }

func LoadConfig(path string) (*FileConfig, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithMessagef(ErrFatal, "config %s: %v", path, err)
	}
	var raw map[string]any
	if err := jsoniter.Unmarshal(b, &raw); err != nil {
		return nil, errors.WithMessagef(ErrFatal, "config %s: %v", path, err)
	}
	kv := make(map[string]string, len(raw))
	for k, v := range raw {
		switch t := v.(type) {
		case string:
			kv[k] = t
		case float64:
			kv[k] = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			kv[k] = strconv.FormatBool(t)
		default:
			s, _ := jsoniter.MarshalToString(v)
			kv[k] = s
		}
	}
	return &FileConfig{kv: kv, path: path}, nil
}

func (c *FileConfig) Get(key string) string { return c.kv[key] }

//
// typed accessors over any provider
//

func ConfInt(c Config, key string, dflt int) int {
	s := c.Get(key)
	if s == "" {
		return dflt
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return dflt
	}
	return v
}

func ConfBool(c Config, key string, dflt bool) bool {
	switch strings.ToLower(c.Get(key)) {
	case "true", "yes", "1":
		return true
	case "false", "no", "0":
		return false
	}
	return dflt
}

func ConfDuration(c Config, key string, dflt time.Duration) time.Duration {
	s := c.Get(key)
	if s == "" {
		return dflt
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second
	}
	return dflt
}

// ConfSeq enumerates numbered keys ("producer-1", "producer-2", ...) until the
// first gap.
func ConfSeq(c Config, prefix string) (values []string) {
	for i := 1; ; i++ {
		v := c.Get(prefix + "-" + strconv.Itoa(i))
		if v == "" {
			return
		}
		values = append(values, v)
	}
}
