package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/pelletier/go-toml/v2"
	"github.com/smazurov/gpionode/internal/pins"
)

// PinLabel is one [pins.<n>] table of the labels file.
type PinLabel struct {
	Name        *string `toml:"name"`
	Description *string `toml:"description"`
}

// Labels is the parsed labels file:
//
//	[pins.17]
//	name = "Door sensor"
//	description = "Reed switch, closes when the door shuts"
type Labels struct {
	Pins map[string]PinLabel `toml:"pins"`
}

// LoadLabels reads a labels file. A missing file is an empty set.
func LoadLabels(path string) (Labels, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return Labels{}, nil
	}
	if err != nil {
		return Labels{}, fmt.Errorf("read labels: %w", err)
	}

	var labels Labels
	if err := toml.Unmarshal(data, &labels); err != nil {
		return Labels{}, fmt.Errorf("parse labels %s: %w", path, err)
	}
	return labels, nil
}

// Changes converts the file into label changes keyed by pin. Tables that
// set neither field are skipped.
func (l Labels) Changes() (map[int]pins.SetLabel, error) {
	out := make(map[int]pins.SetLabel, len(l.Pins))
	for key, label := range l.Pins {
		pin, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("labels: [pins.%s] is not a pin number", key)
		}
		if label.Name == nil && label.Description == nil {
			continue
		}
		out[pin] = pins.SetLabel{Name: label.Name, Description: label.Description}
	}
	return out, nil
}
