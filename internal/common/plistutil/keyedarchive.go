package plistutil

import (
	"howett.net/plist"
)

const nullObject = "$null"

// IsKeyedArchive reports whether data is an NSKeyedArchiver envelope
func IsKeyedArchive(data map[string]interface{}) bool {
	_, hasObjects := data["$objects"]
	_, hasTop := data["$top"]
	return hasObjects && hasTop
}

// ResolveKeyedArchive returns the root object of an NSKeyedArchiver envelope with its
// direct UID references replaced by the referenced objects. A plain dictionary is
// returned unchanged.
func ResolveKeyedArchive(data map[string]interface{}) (map[string]interface{}, bool) {
	if !IsKeyedArchive(data) {
		return data, true
	}

	objects, ok := data["$objects"].([]interface{})
	if !ok {
		return nil, false
	}
	top, ok := data["$top"].(map[string]interface{})
	if !ok {
		return nil, false
	}

	rootRef, ok := top["root"]
	if !ok {
		return nil, false
	}
	root, ok := deref(objects, rootRef).(map[string]interface{})
	if !ok {
		return nil, false
	}

	resolved := make(map[string]interface{}, len(root))
	for key, value := range root {
		if _, isUID := value.(plist.UID); isUID {
			value = deref(objects, value)
			if value == nil {
				continue
			}
		}
		resolved[key] = value
	}
	return resolved, true
}

func deref(objects []interface{}, ref interface{}) interface{} {
	uid, ok := ref.(plist.UID)
	if !ok {
		return ref
	}
	if uint64(uid) >= uint64(len(objects)) {
		return nil
	}
	obj := objects[uid]
	if s, ok := obj.(string); ok && s == nullObject {
		return nil
	}
	return obj
}
