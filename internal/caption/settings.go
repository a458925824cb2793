package caption

import (
	"fmt"
	"strings"
)

type Template string

const (
	Karaoke    Template = "karaoke"
	WordByWord Template = "word-by-word"
	Sentence   Template = "sentence"
	Minimal    Template = "minimal"
)

type Anchor string

const (
	AnchorTop    Anchor = "top"
	AnchorCenter Anchor = "center"
	AnchorBottom Anchor = "bottom"
)

type Size string

const (
	SizeSmall  Size = "small"
	SizeMedium Size = "medium"
	SizeLarge  Size = "large"
)

// Settings are fixed for one render pass. Colours are hex strings
// (#RGB, #RRGGBB or #RRGGBBAA).
type Settings struct {
	Template   Template `yaml:"template" json:"template"`
	Anchor     Anchor   `yaml:"position" json:"position"`
	Size       Size     `yaml:"size" json:"size"`
	Font       string   `yaml:"font" json:"font"`
	TextColor  string   `yaml:"color" json:"color"`
	Background string   `yaml:"background" json:"background"`
}

func DefaultSettings() Settings {
	return Settings{
		Template:   Karaoke,
		Anchor:     AnchorBottom,
		Size:       SizeMedium,
		Font:       "go-bold",
		TextColor:  "#FFFFFF",
		Background: "#000000A6",
	}
}

// WithDefaults fills unset fields from DefaultSettings.
func (s Settings) WithDefaults() Settings {
	d := DefaultSettings()
	if s.Template == "" {
		s.Template = d.Template
	}
	if s.Anchor == "" {
		s.Anchor = d.Anchor
	}
	if s.Size == "" {
		s.Size = d.Size
	}
	if s.Font == "" {
		s.Font = d.Font
	}
	if s.TextColor == "" {
		s.TextColor = d.TextColor
	}
	if s.Background == "" {
		s.Background = d.Background
	}
	return s
}

func (s Settings) Validate() error {
	if _, err := ParseTemplate(string(s.Template)); err != nil {
		return err
	}
	if _, err := ParseAnchor(string(s.Anchor)); err != nil {
		return err
	}
	if _, err := ParseSize(string(s.Size)); err != nil {
		return err
	}
	return nil
}

// Normalized fills defaults and canonicalises the enumerated fields, so
// aliases such as "word_by_word" select the right template.
func (s Settings) Normalized() (Settings, error) {
	s = s.WithDefaults()
	var err error
	if s.Template, err = ParseTemplate(string(s.Template)); err != nil {
		return s, err
	}
	if s.Anchor, err = ParseAnchor(string(s.Anchor)); err != nil {
		return s, err
	}
	if s.Size, err = ParseSize(string(s.Size)); err != nil {
		return s, err
	}
	return s, nil
}

func ParseTemplate(v string) (Template, error) {
	switch t := Template(strings.ToLower(strings.TrimSpace(v))); t {
	case Karaoke, WordByWord, Sentence, Minimal:
		return t, nil
	case "wordbyword", "word_by_word":
		return WordByWord, nil
	default:
		return "", fmt.Errorf("unknown caption template %q", v)
	}
}

func ParseAnchor(v string) (Anchor, error) {
	switch a := Anchor(strings.ToLower(strings.TrimSpace(v))); a {
	case AnchorTop, AnchorCenter, AnchorBottom:
		return a, nil
	default:
		return "", fmt.Errorf("unknown caption position %q", v)
	}
}

func ParseSize(v string) (Size, error) {
	switch sz := Size(strings.ToLower(strings.TrimSpace(v))); sz {
	case SizeSmall, SizeMedium, SizeLarge:
		return sz, nil
	default:
		return "", fmt.Errorf("unknown caption size %q", v)
	}
}

// basePixels is the font size for a 1080px short edge.
func (sz Size) basePixels() float64 {
	switch sz {
	case SizeSmall:
		return 44
	case SizeLarge:
		return 76
	default:
		return 58
	}
}
