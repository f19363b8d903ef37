package i18n

import (
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// DefaultLocale is used when a key is missing from the requested locale.
const DefaultLocale = "en"

//go:embed catalogs/*.yaml
var catalogFS embed.FS

// Catalogs resolves message keys across locales. It implements
// service.Translator.
type Catalogs struct {
	mu       sync.RWMutex
	messages map[string]map[string]string
}

// NewCatalogs creates an empty catalog set.
func NewCatalogs() *Catalogs {
	return &Catalogs{messages: make(map[string]map[string]string)}
}

// LoadCatalogs reads every <locale>.yaml file in fsys.
func LoadCatalogs(fsys fs.FS) (*Catalogs, error) {
	c := NewCatalogs()
	files, err := fs.Glob(fsys, "*.yaml")
	if err != nil {
		return nil, err
	}
	for _, name := range files {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, err
		}
		locale := strings.TrimSuffix(path.Base(name), ".yaml")
		if err := c.Add(locale, data); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Bundled returns the catalogs compiled into the program.
func Bundled() (*Catalogs, error) {
	sub, err := fs.Sub(catalogFS, "catalogs")
	if err != nil {
		return nil, err
	}
	return LoadCatalogs(sub)
}

// Add merges a YAML catalog into locale. Nested maps become dotted keys.
func (c *Catalogs) Add(locale string, data []byte) error {
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return fmt.Errorf("catalog %s: %w", locale, err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := c.messages[locale]
	if msgs == nil {
		msgs = make(map[string]string)
		c.messages[locale] = msgs
	}
	flatten("", tree, msgs)
	return nil
}

func flatten(prefix string, tree map[string]any, out map[string]string) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch v := v.(type) {
		case map[string]any:
			flatten(key, v, out)
		case nil:
		default:
			out[key] = fmt.Sprint(v)
		}
	}
}

// Translate returns the message for key in locale. A regional locale
// falls back to its language, then to DefaultLocale, then to key itself.
func (c *Catalogs) Translate(locale, key string) string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, l := range fallbacks(locale) {
		if msg, ok := c.messages[l][key]; ok {
			return msg
		}
	}
	return key
}

// fallbacks returns the lookup chain for locale: "zh-Hant-TW" yields
// zh-Hant-TW, zh-Hant, zh, en.
func fallbacks(locale string) []string {
	locale = strings.ReplaceAll(locale, "_", "-")
	var chain []string
	for locale != "" {
		chain = append(chain, locale)
		i := strings.LastIndexByte(locale, '-')
		if i < 0 {
			break
		}
		locale = locale[:i]
	}
	if len(chain) == 0 || chain[len(chain)-1] != DefaultLocale {
		chain = append(chain, DefaultLocale)
	}
	return chain
}

// Locales returns the available locales, sorted.
func (c *Catalogs) Locales() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]string, 0, len(c.messages))
	for l := range c.messages {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}
