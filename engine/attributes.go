package engine

import (
	"sort"

	"pdfsift/artifact"
	"pdfsift/fuzzy"
	"pdfsift/hasher"
	"pdfsift/ingest"
	"pdfsift/logger"
	"pdfsift/metadata"
)

// attributes collects the descriptive attributes attached to every
// published artifact besides its label.
func (e *Engine) attributes(task ingest.Task, working string) []artifact.Attribute {
	attrs := []artifact.Attribute{
		{Name: "module", Value: ModuleName},
		{Name: "file_name", Value: task.Name},
	}
	add := func(name, value string) {
		if value != "" {
			attrs = append(attrs, artifact.Attribute{Name: name, Value: value})
		}
	}
	add("mod_time", task.ModTime)
	add("creation_time", task.CreationTime)

	if mime, err := metadata.SniffMIME(working); err != nil {
		logger.Debugf("can't sniff %s: %v", working, err)
	} else {
		add("mime_type", mime)
		if mime != metadata.MIMEPDF {
			logger.Warnf("'%s' has a .pdf extension but its content sniffs as %s", task.Name, mime)
		}
	}

	if e.opts.DocInfo {
		info := metadata.PDFInfo(working, e.opts.MetadataMaxBytes)
		keys := make([]string, 0, len(info))
		for k := range info {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add("pdf_"+k, info[k])
		}
	}

	if len(e.opts.HashAlgorithms) > 0 {
		digests := hasher.ComputeHashes(working, e.opts.HashAlgorithms)
		keys := make([]string, 0, len(digests))
		for k := range digests {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			add("hash_"+k, digests[k])
		}
	}

	if e.opts.FuzzyHash != "" {
		digest, err := fuzzy.HashFile(e.opts.FuzzyHash, working, e.opts.MetadataMaxBytes)
		if err != nil {
			logger.Debugf("no %s digest for %s: %v", e.opts.FuzzyHash, working, err)
		} else {
			add("fuzzy_"+e.opts.FuzzyHash, digest)
		}
	}
	return attrs
}
