package sync

import (
	"bytes"
	"os"
	"path/filepath"
	"unicode/utf8"
)

// Converter turns a recognized-extension file's raw bytes into the text a
// sync job should embed (e.g. org-mode -> markdown). spec.md places the
// conversion itself out of scope; the engine only needs somewhere to call
// it from.
type Converter interface {
	Convert(path string, raw []byte) (string, error)
}

// PassthroughConverter returns raw bytes decoded as UTF-8 unchanged; it is
// the default when no format-specific Converter is configured.
type PassthroughConverter struct{}

func (PassthroughConverter) Convert(_ string, raw []byte) (string, error) {
	return string(raw), nil
}

const binarySniffWindow = 512

// isLikelyText reports whether the first binarySniffWindow bytes of raw
// look like UTF-8 text: no NUL bytes and a low ratio of invalid runes.
func isLikelyText(raw []byte) bool {
	window := raw
	if len(window) > binarySniffWindow {
		window = window[:binarySniffWindow]
	}
	if bytes.IndexByte(window, 0) >= 0 {
		return false
	}
	if len(window) == 0 {
		return true
	}

	invalid := 0
	for i := 0; i < len(window); {
		r, size := utf8.DecodeRune(window[i:])
		if r == utf8.RuneError && size == 1 {
			invalid++
		}
		i += size
	}
	return float64(invalid)/float64(len(window)) < 0.3
}

// isEligibleFile reports whether path should be read and embedded: a
// regular, readable file whose sniffed content looks like text.
func isEligibleFile(path string, info os.FileInfo) (bool, error) {
	if info.IsDir() || !info.Mode().IsRegular() {
		return false, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()

	buf := make([]byte, binarySniffWindow)
	n, readErr := f.Read(buf)
	if readErr != nil && n == 0 {
		return false, nil
	}
	return isLikelyText(buf[:n]), nil
}

// convertedExtensions names the file extensions routed through a
// configured Converter rather than read as raw text.
var convertedExtensions = map[string]bool{
	".org": true,
}

func needsConversion(path string) bool {
	return convertedExtensions[filepath.Ext(path)]
}
