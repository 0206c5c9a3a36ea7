// Package fingerprint builds a coherent browser identity for one session and
// applies it to a page before any site script runs.
package fingerprint

import (
	"fmt"
	"math/rand"
	"strings"
	"time"

	"fsbo_scrooper/motion"
)

// Profile is one virtual identity. Every value is consistent with the others:
// the platform matches the user agent, the GPU matches the platform.
type Profile struct {
	UserAgent           string   `json:"userAgent"`
	ChromeMajor         string   `json:"chromeMajor"`
	Platform            string   `json:"platform"`
	CHPlatform          string   `json:"chPlatform"`
	Languages           []string `json:"languages"`
	AcceptLanguage      string   `json:"acceptLanguage"`
	Locale              string   `json:"locale"`
	TimezoneID          string   `json:"timezoneId"`
	ScreenWidth         int      `json:"screenWidth"`
	ScreenHeight        int      `json:"screenHeight"`
	ViewportWidth       int      `json:"viewportWidth"`
	ViewportHeight      int      `json:"viewportHeight"`
	DevicePixelRatio    float64  `json:"devicePixelRatio"`
	HardwareConcurrency int      `json:"hardwareConcurrency"`
	DeviceMemory        int      `json:"deviceMemory"`
	WebGLVendor         string   `json:"webglVendor"`
	WebGLRenderer       string   `json:"webglRenderer"`
	NoiseSeed           uint32   `json:"noiseSeed"`
}

type platformPreset struct {
	uaOS       string
	platform   string
	chPlatform string
	gpus       [][2]string
}

var platformPresets = []platformPreset{
	{
		uaOS:       "Windows NT 10.0; Win64; x64",
		platform:   "Win32",
		chPlatform: "Windows",
		gpus: [][2]string{
			{"Google Inc. (Intel)", "ANGLE (Intel, Intel(R) UHD Graphics 630 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce GTX 1650 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
			{"Google Inc. (NVIDIA)", "ANGLE (NVIDIA, NVIDIA GeForce RTX 3060 Direct3D11 vs_5_0 ps_5_0, D3D11)"},
		},
	},
	{
		uaOS:       "Macintosh; Intel Mac OS X 10_15_7",
		platform:   "MacIntel",
		chPlatform: "macOS",
		gpus: [][2]string{
			{"Google Inc. (Apple)", "ANGLE (Apple, Apple M1, OpenGL 4.1)"},
			{"Google Inc. (Intel Inc.)", "ANGLE (Intel Inc., Intel Iris Plus Graphics, OpenGL 4.1)"},
		},
	},
	{
		uaOS:       "X11; Linux x86_64",
		platform:   "Linux x86_64",
		chPlatform: "Linux",
		gpus: [][2]string{
			{"Google Inc. (Intel)", "ANGLE (Intel, Mesa Intel(R) UHD Graphics 620 (KBL GT2), OpenGL 4.6)"},
		},
	},
}

// screens are the most common desktop resolutions.
var screens = [][2]int{
	{1920, 1080},
	{1366, 768},
	{1536, 864},
	{1440, 900},
	{1280, 720},
	{2560, 1440},
}

var chromeMajors = []string{"120", "121", "122", "123"}

type localePreset struct {
	locale         string
	timezoneID     string
	acceptLanguage string
	languages      []string
}

var localePresets = []localePreset{
	{"en-US", "America/New_York", "en-US,en;q=0.9", []string{"en-US", "en"}},
	{"en-US", "America/Chicago", "en-US,en;q=0.9", []string{"en-US", "en"}},
	{"en-US", "America/Los_Angeles", "en-US,en;q=0.9", []string{"en-US", "en"}},
	{"en-US", "America/Denver", "en-US,en;q=0.9,es;q=0.8", []string{"en-US", "en", "es"}},
}

var hardwareConcurrencies = []int{4, 8, 12, 16}
var deviceMemories = []int{4, 8, 16}

// NewProfile draws a profile from rng. A nil rng seeds from the clock.
func NewProfile(rng motion.Rand) *Profile {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	plat := platformPresets[rng.Intn(len(platformPresets))]
	gpu := plat.gpus[rng.Intn(len(plat.gpus))]
	loc := localePresets[rng.Intn(len(localePresets))]
	major := chromeMajors[rng.Intn(len(chromeMajors))]

	// Bias toward the top three resolutions.
	var screen [2]int
	if rng.Float64() < 0.7 {
		screen = screens[rng.Intn(3)]
	} else {
		screen = screens[rng.Intn(len(screens))]
	}

	// The viewport is the screen minus browser chrome, with a few pixels of jitter.
	vw := screen[0] - rng.Intn(16)
	vh := screen[1] - 80 - rng.Intn(40)

	dpr := 1.0
	if plat.chPlatform == "macOS" {
		dpr = 2.0
	}

	return &Profile{
		UserAgent:           fmt.Sprintf("Mozilla/5.0 (%s) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%s.0.0.0 Safari/537.36", plat.uaOS, major),
		ChromeMajor:         major,
		Platform:            plat.platform,
		CHPlatform:          plat.chPlatform,
		Languages:           append([]string(nil), loc.languages...),
		AcceptLanguage:      loc.acceptLanguage,
		Locale:              loc.locale,
		TimezoneID:          loc.timezoneID,
		ScreenWidth:         screen[0],
		ScreenHeight:        screen[1],
		ViewportWidth:       vw,
		ViewportHeight:      vh,
		DevicePixelRatio:    dpr,
		HardwareConcurrency: hardwareConcurrencies[rng.Intn(len(hardwareConcurrencies))],
		DeviceMemory:        deviceMemories[rng.Intn(len(deviceMemories))],
		WebGLVendor:         gpu[0],
		WebGLRenderer:       gpu[1],
		NoiseSeed:           uint32(rng.Int63()),
	}
}

// LaunchArgs are the browser command-line switches that match the profile
// and hide the automation banner and flags.
func LaunchArgs(p *Profile) []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-infobars",
		"--disable-features=IsolateOrigins,site-per-process",
		"--disable-site-isolation-trials",
		"--no-first-run",
		"--no-default-browser-check",
		fmt.Sprintf("--window-size=%d,%d", p.ScreenWidth, p.ScreenHeight),
		"--lang=" + p.Locale,
	}
}

// Headers are sent with every request of the session.
func Headers(p *Profile) map[string]string {
	return map[string]string{
		"Accept":                    "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8",
		"Accept-Language":           p.AcceptLanguage,
		"Sec-Ch-Ua-Platform":        `"` + p.CHPlatform + `"`,
		"Sec-Fetch-Dest":            "document",
		"Sec-Fetch-Mode":            "navigate",
		"Sec-Fetch-Site":            "none",
		"Sec-Fetch-User":            "?1",
		"Upgrade-Insecure-Requests": "1",
	}
}

func (p *Profile) String() string {
	return fmt.Sprintf("%s %dx%d %s", p.CHPlatform, p.ViewportWidth, p.ViewportHeight, strings.Join(p.Languages, ","))
}
