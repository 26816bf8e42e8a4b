package protocol

import (
	"encoding/json"
	"fmt"
)

// SitemapItem describes one servable file in a files response.
type SitemapItem struct {
	Name         string `json:"name"`
	RelativePath string `json:"relative_path,omitempty"`
	FullPath     string `json:"full_path,omitempty"`
	Size         int64  `json:"size"`
}

// Path returns the most specific path known for the item.
func (s SitemapItem) Path() string {
	switch {
	case s.FullPath != "":
		return s.FullPath
	case s.RelativePath != "":
		return s.RelativePath
	default:
		return s.Name
	}
}

// MarshalSitemap renders the message payload of a files response.
func MarshalSitemap(items []SitemapItem) (string, error) {
	if items == nil {
		items = []SitemapItem{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal sitemap: %w", err)
	}
	return string(b), nil
}

// UnmarshalSitemap parses the message payload of a files response.
func UnmarshalSitemap(message string) ([]SitemapItem, error) {
	var items []SitemapItem
	if err := json.Unmarshal([]byte(message), &items); err != nil {
		return nil, fmt.Errorf("unmarshal sitemap: %w", err)
	}
	return items, nil
}
