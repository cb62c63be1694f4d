// Package config loads gpionode settings and watches files for changes.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/gpionode/internal/logging"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// EnvPrefix is prepended to every env tag.
const EnvPrefix = "GPIONODE_"

var durationType = reflect.TypeOf(time.Duration(0))

// LoadConfig fills opts with precedence CLI flag > env var > TOML file >
// default. opts must be a pointer to a struct whose fields carry toml and
// env tags; a string field named Config holds the TOML path. Flags set on
// cmd are never overwritten.
func LoadConfig(opts any, cmd *cobra.Command) error {
	v := reflect.ValueOf(opts).Elem()
	t := v.Type()

	changed := make(map[string]bool)
	if cmd != nil {
		cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })
	}

	var file map[string]any
	if path := v.FieldByName("Config"); path.IsValid() && path.String() != "" {
		data, err := os.ReadFile(path.String())
		switch {
		case err == nil:
			if err := toml.Unmarshal(data, &file); err != nil {
				return fmt.Errorf("parse %s: %w", path.String(), err)
			}
		case !os.IsNotExist(err):
			return fmt.Errorf("read %s: %w", path.String(), err)
		}
	}

	for i := range v.NumField() {
		field, meta := v.Field(i), t.Field(i)
		if changed[fieldNameToFlag(meta.Name)] || !field.CanSet() {
			continue
		}
		if key := meta.Tag.Get("toml"); key != "" && file != nil {
			if value := getNestedValue(file, key); value != nil {
				if err := setFieldValue(field, value); err != nil {
					return fmt.Errorf("%s: %w", key, err)
				}
			}
		}
		if key := meta.Tag.Get("env"); key != "" {
			if value, ok := os.LookupEnv(EnvPrefix + key); ok && value != "" {
				if err := setFieldValueFromString(field, value); err != nil {
					return fmt.Errorf("%s%s: %w", EnvPrefix, key, err)
				}
			}
		}
	}
	return nil
}

// fieldNameToFlag converts a struct field name to the kebab-case flag name
// humacli derives: "LoggingLevel" becomes "logging-level" and
// "PWMSoftwareMaxHz" becomes "pwm-software-max-hz".
func fieldNameToFlag(fieldName string) string {
	runes := []rune(fieldName)
	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1]) || unicode.IsDigit(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				b.WriteByte('-')
			}
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// getNestedValue looks up a dotted path such as "pwm.software_max_hz".
func getNestedValue(data map[string]any, path string) any {
	parts := strings.Split(path, ".")
	for _, part := range parts[:len(parts)-1] {
		next, ok := data[part].(map[string]any)
		if !ok {
			return nil
		}
		data = next
	}
	return data[parts[len(parts)-1]]
}

// setFieldValue assigns a decoded TOML value. Durations may be written as
// strings ("5ms") and floats accept integers.
func setFieldValue(field reflect.Value, value any) error {
	if field.Type() == durationType {
		s, ok := value.(string)
		if !ok {
			return fmt.Errorf("want a duration string, got %T", value)
		}
		return setFieldValueFromString(field, s)
	}

	switch field.Kind() {
	case reflect.String:
		if s, ok := value.(string); ok {
			field.SetString(s)
			return nil
		}
	case reflect.Bool:
		if b, ok := value.(bool); ok {
			field.SetBool(b)
			return nil
		}
	case reflect.Int, reflect.Int64:
		if i, ok := value.(int64); ok {
			field.SetInt(i)
			return nil
		}
	case reflect.Float64:
		switch n := value.(type) {
		case float64:
			field.SetFloat(n)
			return nil
		case int64:
			field.SetFloat(float64(n))
			return nil
		}
	case reflect.Slice:
		if arr, ok := value.([]any); ok && field.Type().Elem().Kind() == reflect.String {
			out := make([]string, 0, len(arr))
			for _, item := range arr {
				s, ok := item.(string)
				if !ok {
					return fmt.Errorf("want strings, got %T", item)
				}
				out = append(out, s)
			}
			field.Set(reflect.ValueOf(out))
			return nil
		}
	}
	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// setFieldValueFromString assigns an env var value. Slices are
// comma-separated.
func setFieldValueFromString(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int64:
		i, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		field.SetInt(i)
	case reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type %s", field.Type())
		}
		parts := strings.Split(value, ",")
		for i := range parts {
			parts[i] = strings.TrimSpace(parts[i])
		}
		field.Set(reflect.ValueOf(parts))
	default:
		return fmt.Errorf("unsupported type %s", field.Type())
	}
	return nil
}

// LoadLoggingConfig reads the [logging] table: level and format, with every
// other key a per-module level. A missing or bad file yields the defaults.
func LoadLoggingConfig(configPath string) logging.Config {
	cfg := logging.Config{
		Level:   "info",
		Format:  "text",
		Modules: make(map[string]string),
	}
	if configPath == "" {
		return cfg
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return cfg
	}

	var raw struct {
		Logging map[string]any `toml:"logging"`
	}
	if err := toml.Unmarshal(data, &raw); err != nil {
		return cfg
	}
	for key, value := range raw.Logging {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "level":
			cfg.Level = s
		case "format":
			cfg.Format = s
		default:
			cfg.Modules[key] = s
		}
	}
	return cfg
}
