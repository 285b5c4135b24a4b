package gitdb

import (
	"os"

	"gopkg.in/ini.v1"
)

// Config reads the repository configuration file. The format is the INI
// dialect git uses; subsections appear as `[section "subsection"]`.
type Config struct {
	file *ini.File
}

// LoadConfig parses the config file at path. A missing file yields an
// empty configuration where every lookup returns its default.
func LoadConfig(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{file: ini.Empty()}, nil
	}
	f, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	return &Config{file: f}, nil
}

// Bool looks up a boolean value, returning def when the key is absent or
// unparsable. Pass an empty subsection for plain sections.
func (c *Config) Bool(section, subsection, name string, def bool) bool {
	sec := section
	if subsection != "" {
		sec = section + ` "` + subsection + `"`
	}
	key := c.file.Section(sec).Key(name)
	if key.String() == "" {
		return def
	}
	v, err := key.Bool()
	if err != nil {
		return def
	}
	return v
}
