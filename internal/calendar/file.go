package calendar

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"guardduty-billing/internal/platform/civil"
)

type fileDocument struct {
	Holidays []struct {
		Date string `yaml:"date"`
		Name string `yaml:"name"`
	} `yaml:"holidays"`
}

// LoadFile reads a YAML holiday list:
//
//	holidays:
//	  - date: 2025-01-01
//	    name: New Year
func LoadFile(path string) (*Static, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes the YAML holiday list format.
func Parse(data []byte) (*Static, error) {
	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("calendar: parse: %w", err)
	}
	holidays := make([]Holiday, 0, len(doc.Holidays))
	for i, entry := range doc.Holidays {
		date, err := civil.ParseDate(entry.Date)
		if err != nil {
			return nil, fmt.Errorf("calendar: entry %d: invalid date %q", i, entry.Date)
		}
		holidays = append(holidays, Holiday{Date: date, Name: entry.Name})
	}
	return NewStatic(holidays...), nil
}
