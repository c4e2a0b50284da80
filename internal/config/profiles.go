package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Profile is a named connection profile from the YAML profiles file. It is
// the file-based counterpart to the store's saved sessions, for setups that
// keep connection targets in version control rather than SQLite.
type Profile struct {
	Title    string `yaml:"title"`
	Endpoint string `yaml:"endpoint"`
	Shell    string `yaml:"shell,omitempty"`
}

// LoadProfiles reads the YAML profiles file at path.
func LoadProfiles(path string) ([]Profile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles file: %w", err)
	}
	var profiles []Profile
	if err := yaml.Unmarshal(data, &profiles); err != nil {
		return nil, fmt.Errorf("parse profiles file %s: %w", path, err)
	}
	return profiles, nil
}

// FindProfile returns the profile with the given title, or nil.
func FindProfile(profiles []Profile, title string) *Profile {
	for i := range profiles {
		if profiles[i].Title == title {
			return &profiles[i]
		}
	}
	return nil
}
