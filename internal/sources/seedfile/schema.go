package seedfile

// Entry represents a single bookmark entry in the seed YAML.
type Entry struct {
	Title string `yaml:"title"`
	URL   string `yaml:"url"`
}

// Config is the root structure of the seed file:
//
//	bookmarks:
//	  - title: Example
//	    url: example.com
type Config struct {
	Bookmarks []Entry `yaml:"bookmarks"`
}
