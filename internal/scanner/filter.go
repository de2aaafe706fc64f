package scanner

import (
	"fmt"
	"regexp"

	"github.com/deploymenttheory/go-resource-downloader/internal/logger"
	"github.com/deploymenttheory/go-resource-downloader/internal/types"
)

// Filter narrows scan results by URL pattern and resource type
type Filter struct {
	includePatterns []*regexp.Regexp
	excludePatterns []*regexp.Regexp
	types           map[types.ResourceType]bool
}

// NewFilter compiles the include and exclude patterns. An empty kinds list
// keeps every type.
func NewFilter(includePatterns, excludePatterns []string, kinds []types.ResourceType) (*Filter, error) {
	f := &Filter{
		types: make(map[types.ResourceType]bool, len(kinds)),
	}

	for _, pattern := range includePatterns {
		if pattern == "" {
			logger.Warningf("Empty include pattern will not match any URLs")
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid include pattern %q: %w", pattern, err)
		}
		f.includePatterns = append(f.includePatterns, re)
	}

	for _, pattern := range excludePatterns {
		if pattern == "" {
			continue
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.excludePatterns = append(f.excludePatterns, re)
	}

	for _, kind := range kinds {
		if !kind.Valid() {
			return nil, fmt.Errorf("unknown resource type %q", kind)
		}
		f.types[kind] = true
	}

	return f, nil
}

// Apply returns the resources that pass the filter, in their original order.
func (f *Filter) Apply(resources []types.ResourceDescriptor) []types.ResourceDescriptor {
	if f == nil {
		return resources
	}
	kept := make([]types.ResourceDescriptor, 0, len(resources))
	for _, r := range resources {
		if f.skip(r) {
			continue
		}
		kept = append(kept, r)
	}
	logger.Debugf("Filter kept %d of %d resources", len(kept), len(resources))
	return kept
}

func (f *Filter) skip(r types.ResourceDescriptor) bool {
	if len(f.types) > 0 && !f.types[r.Type] {
		return true
	}

	// If include patterns exist, the URL must match at least one
	if len(f.includePatterns) > 0 {
		matched := false
		for _, re := range f.includePatterns {
			if re.MatchString(r.URL) {
				matched = true
				break
			}
		}
		if !matched {
			logger.Debugf("URL %s did not match any include patterns, skipping", r.URL)
			return true
		}
	}

	for _, re := range f.excludePatterns {
		if re.MatchString(r.URL) {
			logger.Debugf("URL %s matched exclude pattern %v, skipping", r.URL, re)
			return true
		}
	}

	return false
}
