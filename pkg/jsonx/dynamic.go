// Package jsonx contains JSON helpers shared by the engine: conversion of
// schema values to dynamic maps and best-effort repair of truncated
// documents produced by streaming model output.
package jsonx

import json "github.com/goccy/go-json"

// ToDynamicJSON converts any Go value to a map[string]any by round-tripping
// it through JSON. It is used to hand jsonschema documents to provider SDKs
// that expect loosely typed parameter payloads.
func ToDynamicJSON(val any) (map[string]any, error) {
	b, err := json.Marshal(val)
	if err != nil {
		return nil, err
	}
	result := make(map[string]any)
	if err = json.Unmarshal(b, &result); err != nil {
		return nil, err
	}
	return result, nil
}
