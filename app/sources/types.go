package sources

// Config is one source's YAML configuration, loaded from
// <sources-dir>/<id>.yml. ID is derived from the filename.
type Config struct {
	ID       string         // Derived from filename (without .yml extension)
	URL      string         `yaml:"url"`     // Feed URL, used by the rss adapter only
	Section  string         `yaml:"section"` // Site section override, e.g. a subreddit name
	Adapter  string         `yaml:"adapter"`
	Name     string         `yaml:"name"`
	Settings ConfigSettings `yaml:"settings"`
	Filters  []ConfigFilter `yaml:"filters"`
	NSFW     []string       `yaml:"nsfw_patterns"`
}

type ConfigSettings struct {
	Enabled         bool     `yaml:"enabled"`
	RefreshInterval int      `yaml:"refresh_interval"` // seconds
	MaxItems        int      `yaml:"max_items"`
	Timeout         int      `yaml:"timeout"` // seconds
	ExtractContent  bool     `yaml:"extract_content"`
	Language        string   `yaml:"language"` // BCP 47 tag, e.g. en-US
	Keywords        []string `yaml:"keywords"`
}

type ConfigFilter struct {
	Field    string   `yaml:"field"`
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}
