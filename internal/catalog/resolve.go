package catalog

// Resolve returns the first entry, in insertion order, that the relay path
// names under any of the accepted framings: the entry's relative path, full
// path or name, or the path below the common root prefix. Empty fields never
// match.
func (c *Catalog) Resolve(path string) (*Entry, bool) {
	if path == "" {
		return nil, false
	}
	rooted := c.RootPrefix() + "/" + path
	for _, e := range c.entries {
		if matches(e.RelativePath, path, rooted) || matches(e.FullPath, path, rooted) || e.Name == path {
			return e, true
		}
	}
	return nil, false
}

func matches(field, path, rooted string) bool {
	return field != "" && (field == path || field == rooted)
}
