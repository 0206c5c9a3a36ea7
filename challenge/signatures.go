package challenge

import (
	"embed"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

//go:embed signatures.yaml
var defaultSignaturesFS embed.FS

// Signatures is the vendor profile: every selector and lexical marker the
// detector and the bypass strategies rely on.
type Signatures struct {
	Vendor                string   `yaml:"vendor"`
	ElementSelectors      []string `yaml:"element_selectors"`
	BlockingSelectors     []string `yaml:"blocking_selectors"`
	TitleMarkers          []string `yaml:"title_markers"`
	BodyMarkers           []string `yaml:"body_markers"`
	ScriptSelectors       []string `yaml:"script_selectors"`
	ResolvedTitleBlockers []string `yaml:"resolved_title_blockers"`
	FailurePhrases        []string `yaml:"failure_phrases"`
	SuccessSelectors      []string `yaml:"success_selectors"`
	ContentSelectors      []string `yaml:"content_selectors"`
	MinContentLinks       int      `yaml:"min_content_links"`
	SliderMarkers         []string `yaml:"slider_markers"`
	Targets               Targets  `yaml:"targets"`
	VendorGlobals         []string `yaml:"vendor_globals"`
}

// Targets lists where the strategies look for something to interact with.
type Targets struct {
	Primary       []string `yaml:"primary"`
	Candidates    []string `yaml:"candidates"`
	Alternatives  []string `yaml:"alternatives"`
	SliderHandles []string `yaml:"slider_handles"`
	SliderTracks  []string `yaml:"slider_tracks"`
	Timers        []string `yaml:"timers"`
}

// DefaultSignatures returns the embedded profile, or the compiled fallback
// when the embedded file cannot be parsed.
func DefaultSignatures() *Signatures {
	data, err := defaultSignaturesFS.ReadFile("signatures.yaml")
	if err == nil {
		var s Signatures
		if err = yaml.Unmarshal(data, &s); err == nil {
			s.fill()
			return &s
		}
	}
	log.Error().Err(err).Msg("Failed to load embedded signatures, using defaults")
	return fallbackSignatures()
}

// LoadSignatures reads a profile from path. Fields missing from the file
// inherit the defaults.
func LoadSignatures(path string) (*Signatures, error) {
	if path == "" {
		return DefaultSignatures(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signatures: %w", err)
	}
	var s Signatures
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse signatures %s: %w", path, err)
	}
	s.fill()

	log.Debug().
		Str("vendor", s.Vendor).
		Int("element_selectors", len(s.ElementSelectors)).
		Int("body_markers", len(s.BodyMarkers)).
		Msg("Signatures loaded")

	return &s, nil
}

func (s *Signatures) fill() {
	d := fallbackSignatures()
	fillList(&s.ElementSelectors, d.ElementSelectors)
	fillList(&s.BlockingSelectors, d.BlockingSelectors)
	fillList(&s.TitleMarkers, d.TitleMarkers)
	fillList(&s.BodyMarkers, d.BodyMarkers)
	fillList(&s.ScriptSelectors, d.ScriptSelectors)
	fillList(&s.ResolvedTitleBlockers, d.ResolvedTitleBlockers)
	fillList(&s.FailurePhrases, d.FailurePhrases)
	fillList(&s.SuccessSelectors, d.SuccessSelectors)
	fillList(&s.ContentSelectors, d.ContentSelectors)
	fillList(&s.SliderMarkers, d.SliderMarkers)
	fillList(&s.Targets.Primary, d.Targets.Primary)
	fillList(&s.Targets.Candidates, d.Targets.Candidates)
	fillList(&s.Targets.Alternatives, d.Targets.Alternatives)
	fillList(&s.Targets.SliderHandles, d.Targets.SliderHandles)
	fillList(&s.Targets.SliderTracks, d.Targets.SliderTracks)
	fillList(&s.Targets.Timers, d.Targets.Timers)
	fillList(&s.VendorGlobals, d.VendorGlobals)
	if s.MinContentLinks <= 0 {
		s.MinContentLinks = d.MinContentLinks
	}
	if s.Vendor == "" {
		s.Vendor = d.Vendor
	}
}

func fillList(dst *[]string, def []string) {
	if len(*dst) == 0 {
		*dst = append([]string(nil), def...)
	}
}

func fallbackSignatures() *Signatures {
	return &Signatures{
		Vendor:                "perimeterx",
		ElementSelectors:      []string{"#px-captcha", ".px-captcha", "[id^='px-']", "[class*='captcha']"},
		BlockingSelectors:     []string{"#px-captcha", ".px-captcha"},
		TitleMarkers:          []string{"access denied", "denied", "captcha", "robot", "blocked", "human verification"},
		BodyMarkers:           []string{"press & hold", "press and hold", "human verification", "access to this page has been denied"},
		ScriptSelectors:       []string{"script[src*='px-cdn']", "script[src*='perimeterx']", "script[src*='captcha.px-cloud']"},
		ResolvedTitleBlockers: []string{"denied", "captcha", "robot", "blocked", "verify"},
		FailurePhrases:        []string{"try again", "incorrect"},
		SuccessSelectors:      []string{"[class*='success']", "[class*='passed']"},
		ContentSelectors:      []string{"main", "#content", ".content"},
		MinContentLinks:       5,
		SliderMarkers:         []string{"slide", "drag"},
		Targets: Targets{
			Primary:       []string{"#px-captcha", ".px-captcha"},
			Candidates:    []string{"button", "[role='button']", "[tabindex]", "iframe", "div"},
			Alternatives:  []string{"button", "[role='button']", "[class*='button']", "iframe[src*='captcha']", "[class*='slider']", "[id^='px-']", "[class^='px-']", "div[tabindex]", "[class*='verify']", "[id*='captcha']"},
			SliderHandles: []string{"[class*='slider'] [class*='handle']", "[role='slider']"},
			SliderTracks:  []string{"[class*='slider']"},
			Timers:        []string{"[class*='progress']", "[class*='timer']", "[role='progressbar']"},
		},
		VendorGlobals: []string{"_pxAppId", "_pxJsClientSrc"},
	}
}
