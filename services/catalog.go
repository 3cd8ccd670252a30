package services

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"thought_engine/models"
)

//go:embed catalog.yaml
var defaultCatalogYAML []byte

// CategoryDef 一个兴趣类别及其附属的推荐来源
type CategoryDef struct {
	Name           string   `yaml:"name"`
	Keywords       []string `yaml:"keywords"`
	AdvancedTerms  []string `yaml:"advanced_terms"`
	Formats        []string `yaml:"formats"`
	Platforms      []string `yaml:"platforms"`
	Forums         []string `yaml:"forums"`
	SourceKeywords []string `yaml:"source_keywords"`
}

type catalogFile struct {
	Categories []CategoryDef        `yaml:"categories"`
	Tones      map[string][]string `yaml:"tones"`
}

// Catalog 加载后的关键词表，构造完成后不再修改
type Catalog struct {
	categories []CategoryDef
	byName     map[string]CategoryDef
	tones      map[models.Tone][]string
}

// DefaultCatalog 内置关键词表
func DefaultCatalog() (*Catalog, error) {
	return ParseCatalog(defaultCatalogYAML)
}

// LoadCatalog 从文件加载关键词表，路径为空时使用内置表
func LoadCatalog(path string) (*Catalog, error) {
	if path == "" {
		return DefaultCatalog()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog 解析并校验关键词表，关键词统一转为小写
func ParseCatalog(data []byte) (*Catalog, error) {
	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse catalog: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("catalog has no categories")
	}

	c := &Catalog{
		byName: make(map[string]CategoryDef, len(file.Categories)),
		tones:  make(map[models.Tone][]string, len(models.Tones)),
	}
	for _, def := range file.Categories {
		def.Name = strings.TrimSpace(def.Name)
		if def.Name == "" {
			return nil, fmt.Errorf("catalog category without name")
		}
		if _, dup := c.byName[def.Name]; dup {
			return nil, fmt.Errorf("duplicate catalog category %q", def.Name)
		}
		if len(def.Keywords) == 0 {
			return nil, fmt.Errorf("catalog category %q has no keywords", def.Name)
		}
		def.Keywords = lowerAll(def.Keywords)
		def.AdvancedTerms = lowerAll(def.AdvancedTerms)
		c.categories = append(c.categories, def)
		c.byName[def.Name] = def
	}

	for name, words := range file.Tones {
		tone := models.Tone(strings.ToLower(name))
		if !knownTone(tone) {
			return nil, fmt.Errorf("unknown tone %q in catalog", name)
		}
		c.tones[tone] = lowerAll(words)
	}
	return c, nil
}

// Categories 按配置顺序返回类别
func (c *Catalog) Categories() []CategoryDef {
	out := make([]CategoryDef, len(c.categories))
	copy(out, c.categories)
	return out
}

// Category 按名称查找类别
func (c *Catalog) Category(name string) (CategoryDef, bool) {
	def, ok := c.byName[name]
	return def, ok
}

// ToneKeywords 某种语气的关键词
func (c *Catalog) ToneKeywords(t models.Tone) []string {
	return c.tones[t]
}

func knownTone(t models.Tone) bool {
	for _, known := range models.Tones {
		if known == t {
			return true
		}
	}
	return false
}

func lowerAll(words []string) []string {
	out := make([]string, 0, len(words))
	for _, w := range words {
		if w = strings.ToLower(strings.TrimSpace(w)); w != "" {
			out = append(out, w)
		}
	}
	return out
}
