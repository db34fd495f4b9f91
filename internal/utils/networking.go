package utils

import (
	"fmt"
	"math/rand/v2"
	"net/http"
	"slices"
	"strings"
)

func RandomUserAgent() string {
	const minMajor = 132
	const maxMajor = 138

	major := rand.IntN(maxMajor-minMajor+1) + minMajor
	return fmt.Sprintf(
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/%d.0.0.0 Safari/537.36",
		major,
	)
}

// BuildFFmpegHeaders builds the CRLF-joined value for the AVFormat "headers"
// option. Missing browser-like defaults are filled in, so a nil map still
// yields a usable header set.
func BuildFFmpegHeaders(base map[string]string) string {
	h := make(map[string]string, len(base)+6)
	for k, v := range base {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		h[http.CanonicalHeaderKey(k)] = strings.TrimSpace(v)
	}

	defaults := map[string]string{
		"User-Agent":      RandomUserAgent(),
		"Referer":         "https://www.youtube.com/",
		"Accept":          "*/*",
		"Accept-Language": "en-US,en;q=0.9",
		"Origin":          "https://www.youtube.com",
		"Connection":      "keep-alive",
	}
	for k, v := range defaults {
		if _, ok := h[k]; !ok {
			h[k] = v
		}
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var b strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\r\n", k, h[k])
	}
	return b.String()
}
