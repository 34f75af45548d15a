package modules

import (
	"seoaudit/internal/errutil"
)

// Settings access helpers. Module settings come out of the configuration
// snapshot as map[string]interface{}; each helper names the full key path in
// its error so misconfigurations point at the line to fix.

func settingInt(settings map[string]interface{}, module, key string, fallback int) (int, error) {
	raw, ok := settings[key]
	if !ok {
		return fallback, nil
	}

	switch value := raw.(type) {
	case int:
		return value, nil
	case int64:
		return int(value), nil
	case float64:
		return int(value), nil
	default:
		return 0, &errutil.ConfigurationInvalidError{
			Key:    "modules." + module + ".settings." + key,
			Reason: "must be an integer",
		}
	}
}

func settingSlice(settings map[string]interface{}, module, key string) ([]map[string]interface{}, error) {
	raw, ok := settings[key]
	if !ok {
		return nil, &errutil.ConfigurationMissingError{Key: "modules." + module + ".settings." + key}
	}

	list, ok := raw.([]interface{})
	if !ok {
		return nil, &errutil.ConfigurationInvalidError{
			Key:    "modules." + module + ".settings." + key,
			Reason: "must be a list",
		}
	}

	out := make([]map[string]interface{}, 0, len(list))

	for _, item := range list {
		entry, ok := item.(map[string]interface{})
		if !ok {
			return nil, &errutil.ConfigurationInvalidError{
				Key:    "modules." + module + ".settings." + key,
				Reason: "entries must be objects",
			}
		}
		out = append(out, entry)
	}

	return out, nil
}
