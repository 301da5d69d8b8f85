package normalize

import (
	"encoding/json"
	"fmt"
	"strings"
)

// addressKinds maps platform address types to the suffix of derived fields.
var addressKinds = map[string]string{
	"IP":       "ips",
	"MAC":      "macs",
	"HOSTNAME": "hostnames",
	"DOMAIN":   "domains",
}

var directions = []string{"source", "destination"}

// extractDirectional derives source_*/destination_* address fields from the
// assets of a notification.
func extractDirectional(obj map[string]interface{}) error {
	rawAssets, ok := obj["assets"]
	if !ok || rawAssets == nil {
		return nil
	}
	assets, ok := rawAssets.([]interface{})
	if !ok {
		return fmt.Errorf("assets is %T, not a list", rawAssets)
	}

	collected := map[string][]string{}
	for i, rawAsset := range assets {
		asset, ok := rawAsset.(map[string]interface{})
		if !ok {
			return fmt.Errorf("assets[%d] is %T, not an object", i, rawAsset)
		}

		dirs, err := assetDirections(asset["directionalities"])
		if err != nil {
			return fmt.Errorf("assets[%d].directionalities: %w", i, err)
		}
		addresses, err := typedAddresses(asset["addresses"])
		if err != nil {
			return fmt.Errorf("assets[%d].addresses: %w", i, err)
		}

		for _, dir := range dirs {
			for _, addr := range addresses {
				key := dir + "_" + addr.kind
				collected[key] = append(collected[key], addr.value)
			}
		}
	}

	for _, dir := range directions {
		for _, suffix := range addressKinds {
			key := dir + "_" + suffix
			if value, ok := collapse(dedupe(collected[key])); ok {
				obj[key] = value
			}
		}
	}
	return nil
}

// assetDirections reads a direction string or list into lowercase known directions.
func assetDirections(raw interface{}) ([]string, error) {
	var values []interface{}
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case string:
		values = []interface{}{v}
	case []interface{}:
		values = v
	default:
		return nil, fmt.Errorf("unexpected type %T", raw)
	}

	var dirs []string
	for _, value := range values {
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("direction is %T, not a string", value)
		}
		s = strings.ToLower(strings.TrimSpace(s))
		for _, known := range directions {
			if s == known {
				dirs = append(dirs, s)
			}
		}
	}
	return dirs, nil
}

type typedAddress struct {
	kind  string
	value string
}

// typedAddresses reads [{"type": "IP", "value": "10.0.0.1"}, ...]. Unknown
// address types are skipped.
func typedAddresses(raw interface{}) ([]typedAddress, error) {
	if raw == nil {
		return nil, nil
	}
	list, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", raw)
	}

	out := make([]typedAddress, 0, len(list))
	for i, item := range list {
		addr, ok := item.(map[string]interface{})
		if !ok {
			return nil, fmt.Errorf("[%d] is %T, not an object", i, item)
		}
		kind, ok := addr["type"].(string)
		if !ok {
			return nil, fmt.Errorf("[%d].type is %T, not a string", i, addr["type"])
		}
		value, err := scalarString(addr["value"])
		if err != nil {
			return nil, fmt.Errorf("[%d].value: %w", i, err)
		}
		suffix, known := addressKinds[strings.ToUpper(kind)]
		if !known || value == "" {
			continue
		}
		out = append(out, typedAddress{kind: suffix, value: value})
	}
	return out, nil
}

// assetFields maps host attributes and address types to the canonical asset fields.
var assetFields = []struct {
	field       string
	attribute   string
	addressType string
}{
	{field: "ip", attribute: "host.ip", addressType: "ips"},
	{field: "mac", attribute: "host.mac", addressType: "macs"},
	{field: "nt_host", attribute: "host.hostname", addressType: "hostnames"},
	{field: "dns", attribute: "host.domain", addressType: "domains"},
}

// enrichAsset merges host attributes and typed addresses into ip, mac,
// nt_host and dns, keeping values already present on the record.
func enrichAsset(obj map[string]interface{}) error {
	attributes := map[string]interface{}{}
	if raw, ok := obj["attributes"]; ok && raw != nil {
		m, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("attributes is %T, not an object", raw)
		}
		attributes = m
	}
	addresses, err := typedAddresses(obj["addresses"])
	if err != nil {
		return fmt.Errorf("addresses: %w", err)
	}

	for _, f := range assetFields {
		values, err := stringList(obj[f.field])
		if err != nil {
			return fmt.Errorf("%s: %w", f.field, err)
		}
		fromAttribute, err := stringList(attributes[f.attribute])
		if err != nil {
			return fmt.Errorf("attributes[%q]: %w", f.attribute, err)
		}
		values = append(values, fromAttribute...)
		for _, addr := range addresses {
			if addr.kind == f.addressType {
				values = append(values, addr.value)
			}
		}

		if value, ok := collapse(dedupe(values)); ok {
			obj[f.field] = value
		}
	}
	return nil
}

// enrichDestination sets dest from the host identity: MAC, then IP, then
// hostname, then display name, else "unknown".
func enrichDestination(obj map[string]interface{}) error {
	dest := "unknown"
	if raw, ok := obj["host"]; ok && raw != nil {
		host, ok := raw.(map[string]interface{})
		if !ok {
			return fmt.Errorf("host is %T, not an object", raw)
		}
		for _, key := range []string{"mac", "ip", "hostname", "name"} {
			first, err := firstString(host[key])
			if err != nil {
				return fmt.Errorf("host.%s: %w", key, err)
			}
			if first != "" {
				dest = first
				break
			}
		}
	}
	obj["dest"] = dest
	return nil
}

// firstString returns the first non-empty string of a scalar or list.
func firstString(raw interface{}) (string, error) {
	values, err := stringList(raw)
	if err != nil {
		return "", err
	}
	for _, v := range values {
		if v != "" {
			return v, nil
		}
	}
	return "", nil
}

// stringList reads a scalar or a list of scalars.
func stringList(raw interface{}) ([]string, error) {
	switch v := raw.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, err := scalarString(item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		s, err := scalarString(v)
		if err != nil {
			return nil, err
		}
		return []string{s}, nil
	}
}

func scalarString(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return strings.TrimSpace(v), nil
	case json.Number:
		return v.String(), nil
	case float64:
		return fmt.Sprint(v), nil
	case bool:
		return fmt.Sprint(v), nil
	default:
		return "", fmt.Errorf("unexpected value type %T", raw)
	}
}

// dedupe drops empty and repeated values, keeping first-seen order.
func dedupe(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// collapse turns a single value into a scalar; ok is false for no values.
func collapse(values []string) (interface{}, bool) {
	switch len(values) {
	case 0:
		return nil, false
	case 1:
		return values[0], true
	default:
		out := make([]interface{}, len(values))
		for i, v := range values {
			out[i] = v
		}
		return out, true
	}
}
