package clipboard

import (
	"os"
	"regexp"
	"runtime"

	"github.com/atotto/clipboard"
)

// Capabilities describes the copy environment. It is detected once and
// injected so the cascade itself never sniffs the platform.
type Capabilities struct {
	// IsTouchPlatform sends every copy straight to the manual surface.
	IsTouchPlatform bool `json:"is_touch_platform"`
	// HasSecureClipboard allows the native clipboard strategy.
	HasSecureClipboard bool `json:"has_secure_clipboard"`
}

var mobileUA = regexp.MustCompile(`(?i)android|webos|iphone|ipad|ipod|blackberry|iemobile|opera mini|mobile`)

// CapabilitiesFromUserAgent classifies a browser user agent. secure reports
// whether the page is served over a secure transport.
func CapabilitiesFromUserAgent(ua string, secure bool) Capabilities {
	return Capabilities{
		IsTouchPlatform:    mobileUA.MatchString(ua),
		HasSecureClipboard: secure,
	}
}

// DetectCapabilities inspects the local runtime.
func DetectCapabilities() Capabilities {
	return detect(runtime.GOOS, os.Getenv, clipboard.Unsupported)
}

func detect(goos string, getenv func(string) string, unsupported bool) Capabilities {
	caps := Capabilities{}
	switch {
	case goos == "android" || goos == "ios":
		caps.IsTouchPlatform = true
	case getenv("TERMUX_VERSION") != "":
		caps.IsTouchPlatform = true
	}

	// Over SSH the system clipboard belongs to the remote host, so only the
	// terminal sequence reaches the user.
	remote := getenv("SSH_TTY") != "" || getenv("SSH_CONNECTION") != ""
	caps.HasSecureClipboard = !unsupported && !remote
	return caps
}
