package importer

import (
	"encoding/json"
	"fmt"
	"strings"

	"costscan/pkg/logger"

	"go.uber.org/zap"
)

// ParseAlibabaTags parses the flat Alibaba tag string format
// "key:K value:V;key:K2 value:V2". Unparseable fragments are logged and
// skipped, never fatal.
func ParseAlibabaTags(raw string) map[string]string {
	tags := make(map[string]string)
	if raw == "" {
		return tags
	}

	for _, fragment := range strings.Split(raw, ";") {
		fragment = strings.TrimSpace(fragment)
		if fragment == "" {
			continue
		}

		key, value, ok := parseAlibabaTagFragment(fragment)
		if !ok {
			logger.Warn("skipping unparseable tag fragment",
				zap.String("provider", "alibaba"),
				zap.String("fragment", fragment))
			continue
		}
		tags[key] = value
	}

	return tags
}

func parseAlibabaTagFragment(fragment string) (string, string, bool) {
	if !strings.HasPrefix(fragment, "key:") {
		return "", "", false
	}

	rest := fragment[len("key:"):]
	sep := strings.Index(rest, " value:")
	if sep < 0 {
		// A key with no value is legal
		key := strings.TrimSpace(rest)
		if key == "" {
			return "", "", false
		}
		return key, "", true
	}

	key := strings.TrimSpace(rest[:sep])
	value := strings.TrimSpace(rest[sep+len(" value:"):])
	if key == "" {
		return "", "", false
	}
	return key, value, true
}

// FlattenTags flattens a nested tag structure (dict of dicts/lists) into
// dotted keys, the generic fallback for providers that ship structured tags.
func FlattenTags(nested map[string]interface{}) map[string]string {
	flat := make(map[string]string)
	flattenInto(flat, "", nested)
	return flat
}

func flattenInto(flat map[string]string, prefix string, value interface{}) {
	switch v := value.(type) {
	case map[string]interface{}:
		for key, child := range v {
			flattenInto(flat, joinKey(prefix, key), child)
		}
	case []interface{}:
		for i, child := range v {
			flattenInto(flat, joinKey(prefix, fmt.Sprintf("%d", i)), child)
		}
	case string:
		flat[prefix] = v
	case nil:
		flat[prefix] = ""
	default:
		flat[prefix] = fmt.Sprintf("%v", v)
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}

// EncodeTags serializes a tag map for the record attrs
func EncodeTags(tags map[string]string) string {
	if len(tags) == 0 {
		return ""
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return ""
	}
	return string(data)
}

// DecodeTags restores a tag map from the record attrs
func DecodeTags(encoded string) map[string]string {
	if encoded == "" {
		return map[string]string{}
	}
	var tags map[string]string
	if err := json.Unmarshal([]byte(encoded), &tags); err != nil {
		logger.Warn("skipping malformed tag payload", zap.Error(err))
		return map[string]string{}
	}
	return tags
}
