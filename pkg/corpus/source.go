// Package corpus turns a word source key into a normalized training corpus.
//
// A source key is one of the registered names ("en", "names", ...), an
// http(s) URL, or a "file:" path. Remote lists are downloaded once into a
// cache directory and read from disk afterwards.
package corpus

import (
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

var (
	// ErrUnknownSource is returned for a key that is neither registered nor a URL or file path.
	ErrUnknownSource = errors.New("corpus: unknown word source")
	// ErrUnsafeURL is returned when a download target is not a public http(s) address.
	ErrUnsafeURL = errors.New("corpus: unsafe url")
	// ErrTooLarge is returned when a download exceeds the size limit.
	ErrTooLarge = errors.New("corpus: download too large")
	// ErrEmptyDownload is returned when a download has no content.
	ErrEmptyDownload = errors.New("corpus: empty download")
	// ErrContentType is returned when a download is not plain text.
	ErrContentType = errors.New("corpus: unexpected content type")
)

// FilePrefix marks a source key as a local file path.
const FilePrefix = "file:"

// Sources maps registered source names to the word lists they download.
var Sources = map[string]string{
	"en":       "https://raw.githubusercontent.com/dwyl/english-words/master/words_alpha.txt",
	"es":       "https://raw.githubusercontent.com/JorgeDuenasLerin/diccionario-espanol-txt/master/0_palabras_todas.txt",
	"fr":       "https://raw.githubusercontent.com/lorenbrichter/Words/master/Words/fr.txt",
	"de":       "https://raw.githubusercontent.com/lorenbrichter/Words/master/Words/de.txt",
	"it":       "https://raw.githubusercontent.com/napolux/paroleitaliane/master/paroleitaliane/280000_parole_italiane.txt",
	"pt":       "https://raw.githubusercontent.com/pythonprobr/palavras/master/palavras.txt",
	"names":    "https://raw.githubusercontent.com/smashew/NameDatabases/master/NamesDatabases/first%20names/us.txt",
	"surnames": "https://raw.githubusercontent.com/smashew/NameDatabases/master/NamesDatabases/surnames/us.txt",
	"pet":      "https://raw.githubusercontent.com/jonathand-cf/wordlist-pets/refs/heads/main/pet-names.txt",
}

// SourceNames returns the registered source names in sorted order.
func SourceNames() []string {
	names := make([]string, 0, len(Sources))
	for name := range Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Kind tells where a source's words come from.
type Kind int

const (
	KindNamed Kind = iota // a registered list
	KindURL               // an arbitrary http(s) URL
	KindFile              // a local file
)

func (k Kind) String() string {
	switch k {
	case KindNamed:
		return "named"
	case KindURL:
		return "url"
	case KindFile:
		return "file"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Source is a resolved source key.
type Source struct {
	Key  string // the key as given, used to identify cached models
	Kind Kind
	URL  string // set for KindNamed and KindURL
	Path string // set for KindFile
}

// Resolve interprets a source key.
func Resolve(key string) (Source, error) {
	key = strings.TrimSpace(key)
	switch {
	case key == "":
		return Source{}, fmt.Errorf("%w: empty key", ErrUnknownSource)
	case strings.HasPrefix(key, FilePrefix):
		path := strings.TrimPrefix(key, FilePrefix)
		if path == "" {
			return Source{}, fmt.Errorf("%w: %q has no path", ErrUnknownSource, key)
		}
		return Source{Key: key, Kind: KindFile, Path: path}, nil
	case strings.HasPrefix(key, "http://") || strings.HasPrefix(key, "https://"):
		if _, err := url.Parse(key); err != nil {
			return Source{}, fmt.Errorf("%w: %v", ErrUnknownSource, err)
		}
		return Source{Key: key, Kind: KindURL, URL: key}, nil
	}
	if u, ok := Sources[key]; ok {
		return Source{Key: key, Kind: KindNamed, URL: u}, nil
	}
	return Source{}, fmt.Errorf("%w: %q (registered: %s)", ErrUnknownSource, key, strings.Join(SourceNames(), ", "))
}
