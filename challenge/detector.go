// Package challenge recognises an interactive anti-bot challenge on a page
// and judges whether it has been cleared.
package challenge

import (
	"strings"
)

type State string

const (
	StatePresent   State = "present"
	StateClean     State = "clean"
	StateAmbiguous State = "ambiguous"
)

type Variant string

const (
	VariantPressHold Variant = "press_hold"
	VariantSlider    Variant = "slider"
	VariantGeneric   Variant = "generic"
)

type SignalKind string

const (
	SignalElement SignalKind = "element"
	SignalTitle   SignalKind = "title"
	SignalBody    SignalKind = "body"
	SignalScript  SignalKind = "script"
	SignalContent SignalKind = "content"
)

type Signal struct {
	Kind  SignalKind `json:"kind"`
	Value string     `json:"value"`
}

// Verdict is the outcome of Detect.
type Verdict struct {
	State   State    `json:"state"`
	Variant Variant  `json:"variant,omitempty"`
	Signals []Signal `json:"signals,omitempty"`
}

// Present reports whether the caller should treat the page as challenged.
// Ambiguous pages count as challenged.
func (v Verdict) Present() bool {
	return v.State != StateClean
}

func (v Verdict) SignalValues() []string {
	out := make([]string, 0, len(v.Signals))
	for _, s := range v.Signals {
		out = append(out, string(s.Kind)+":"+s.Value)
	}
	return out
}

type Detector struct {
	sig *Signatures
}

func NewDetector(sig *Signatures) *Detector {
	if sig == nil {
		sig = DefaultSignatures()
	}
	return &Detector{sig: sig}
}

func (d *Detector) Signatures() *Signatures { return d.sig }

// Detect classifies the snapshot. Element, title and body markers are strong
// evidence of a challenge. A vendor script alone is weak evidence: it decides
// nothing when real content is visible, and leaves the page ambiguous otherwise.
func (d *Detector) Detect(s Snapshot) Verdict {
	var strong, weak []Signal

	for _, sel := range d.sig.ElementSelectors {
		if s.Count(sel) > 0 {
			strong = append(strong, Signal{Kind: SignalElement, Value: sel})
		}
	}

	title := strings.ToLower(s.Title())
	for _, m := range d.sig.TitleMarkers {
		if strings.Contains(title, m) {
			strong = append(strong, Signal{Kind: SignalTitle, Value: m})
		}
	}

	body := strings.ToLower(s.BodyText())
	for _, m := range d.sig.BodyMarkers {
		if strings.Contains(body, m) {
			strong = append(strong, Signal{Kind: SignalBody, Value: m})
		}
	}

	for _, sel := range d.sig.ScriptSelectors {
		if s.Count(sel) > 0 {
			weak = append(weak, Signal{Kind: SignalScript, Value: sel})
		}
	}

	if len(strong) > 0 {
		return Verdict{
			State:   StatePresent,
			Variant: d.variant(body),
			Signals: append(strong, weak...),
		}
	}

	if content, ok := d.contentSignal(s); ok {
		return Verdict{State: StateClean, Signals: []Signal{content}}
	}

	if len(weak) > 0 {
		return Verdict{State: StateAmbiguous, Variant: VariantGeneric, Signals: weak}
	}
	return Verdict{State: StateAmbiguous}
}

// IsResolved reports whether a challenge that was present has been cleared.
// A remaining blocking element always means no. Otherwise the page counts as
// resolved when the challenge markers are gone, when an explicit success
// marker appears, or when ordinary content has loaded.
func (d *Detector) IsResolved(s Snapshot) bool {
	for _, sel := range d.sig.BlockingSelectors {
		if s.Count(sel) > 0 {
			return false
		}
	}

	elementGone := true
	for _, sel := range d.sig.ElementSelectors {
		if s.Count(sel) > 0 {
			elementGone = false
			break
		}
	}

	title := strings.ToLower(s.Title())
	titleOK := !containsAny(title, d.sig.ResolvedTitleBlockers)

	body := strings.ToLower(s.BodyText())
	failed := containsAny(body, d.sig.FailurePhrases)

	if elementGone && titleOK && !failed {
		return true
	}

	for _, sel := range d.sig.SuccessSelectors {
		if s.Count(sel) > 0 {
			return true
		}
	}

	_, content := d.contentSignal(s)
	return content
}

// HasFailure reports whether the page says the last attempt was rejected.
func (d *Detector) HasFailure(s Snapshot) bool {
	return containsAny(strings.ToLower(s.BodyText()), d.sig.FailurePhrases)
}

func (d *Detector) contentSignal(s Snapshot) (Signal, bool) {
	for _, sel := range d.sig.ContentSelectors {
		if s.Count(sel) > 0 {
			return Signal{Kind: SignalContent, Value: sel}, true
		}
	}
	if s.Count("a[href]") > d.sig.MinContentLinks {
		return Signal{Kind: SignalContent, Value: "links"}, true
	}
	return Signal{}, false
}

func (d *Detector) variant(body string) Variant {
	if containsAny(body, []string{"press & hold", "press and hold"}) {
		return VariantPressHold
	}
	if containsAny(body, d.sig.SliderMarkers) {
		return VariantSlider
	}
	return VariantGeneric
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if sub != "" && strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
