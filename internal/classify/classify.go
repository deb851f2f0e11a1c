// Package classify implements RequestClassifier: a
// deterministic, wall-clock-independent mapping from a Request and its
// matched route's middleware set to one of ultra-fast/fast/standard.
package classify

import (
	"regexp"
	"strings"

	"github.com/nehonix/xypriss/internal/model"
)

// UltraFastTemplate is a pre-registered path template eligible for the
// ultra-fast path. Patterns follow the same `:param` literal syntax as
// routing.RouteTable so registration stays declarative for callers.
type UltraFastTemplate struct {
	segments []string
	regex    *regexp.Regexp
}

// NewUltraFastTemplate builds a literal `:param` template.
func NewUltraFastTemplate(pattern string) UltraFastTemplate {
	return UltraFastTemplate{segments: strings.Split(strings.Trim(pattern, "/"), "/")}
}

// NewUltraFastRegexTemplate builds a regex-matched template.
func NewUltraFastRegexTemplate(re *regexp.Regexp) UltraFastTemplate {
	return UltraFastTemplate{regex: re}
}

func (tpl UltraFastTemplate) matches(path string) bool {
	if tpl.regex != nil {
		return tpl.regex.MatchString(path)
	}
	segs := strings.Split(strings.Trim(path, "/"), "/")
	if len(segs) != len(tpl.segments) {
		return false
	}
	for i, s := range tpl.segments {
		if strings.HasPrefix(s, ":") {
			continue
		}
		if s != segs[i] {
			return false
		}
	}
	return true
}

// Classifier holds the set of pre-registered ultra-fast templates and
// personalization cookie names that disqualify a request from that path.
type Classifier struct {
	templates          []UltraFastTemplate
	personalizationCks map[string]struct{}
}

// New returns a Classifier with no registered templates.
func New() *Classifier {
	return &Classifier{personalizationCks: map[string]struct{}{}}
}

// RegisterUltraFastTemplate adds a path template eligible for the ultra-fast
// path.
func (c *Classifier) RegisterUltraFastTemplate(tpl UltraFastTemplate) {
	c.templates = append(c.templates, tpl)
}

// RegisterPersonalizationCookie marks a cookie name as indicating per-user
// personalization; its presence disqualifies a request from the ultra-fast
// path even when the path template matches.
func (c *Classifier) RegisterPersonalizationCookie(name string) {
	c.personalizationCks[name] = struct{}{}
}

// FastSafeSet records which middleware ids have been declared fast-safe.
// The Dispatcher passes in the effective middleware set for the matched
// route; an empty middleware set is always fast-safe.
type FastSafeSet map[string]bool

// Classify returns req's classification under the declarative rule; it
// does not write req.Classification, which is left to the caller. It never
// reads the wall clock and depends only on method, path, cookies, and the
// route's middleware ids (already resolved by the caller).
func (c *Classifier) Classify(req *model.Request, routeMiddlewareIDs []string, fastSafe FastSafeSet) model.Classification {
	if c.isUltraFastEligible(req) {
		return model.ClassificationUltraFast
	}
	if c.isFastEligible(routeMiddlewareIDs, fastSafe) {
		return model.ClassificationFast
	}
	return model.ClassificationStandard
}

func (c *Classifier) isUltraFastEligible(req *model.Request) bool {
	if req.Method != "GET" && req.Method != "HEAD" {
		return false
	}
	matched := false
	for _, tpl := range c.templates {
		if tpl.matches(req.Path) {
			matched = true
			break
		}
	}
	if !matched {
		return false
	}
	for name := range req.Cookies {
		if _, ok := c.personalizationCks[name]; ok {
			return false
		}
	}
	return true
}

func (c *Classifier) isFastEligible(middlewareIDs []string, fastSafe FastSafeSet) bool {
	if len(middlewareIDs) == 0 {
		return true
	}
	for _, id := range middlewareIDs {
		if !fastSafe[id] {
			return false
		}
	}
	return true
}

// UltraFastCacheKey builds the `ultra:{METHOD}:{path}` cache key used to
// store and retrieve a pre-computed ultra-fast response.
func UltraFastCacheKey(method, path string) string {
	return "ultra:" + strings.ToUpper(method) + ":" + path
}
