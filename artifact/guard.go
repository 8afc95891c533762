package artifact

import (
	"context"

	"pdfsift/logger"
)

// Guard decides whether a new finding may be published for a file that may
// already carry findings from an earlier run or pathway.
type Guard struct {
	Store Store
}

// ShouldPublish returns interesting when the file has no prior artifacts of
// category. With priors, suppress wins; otherwise the duplicate is allowed
// and a warning is logged. A failing store lookup counts as no priors.
func (g Guard) ShouldPublish(ctx context.Context, path, category string, interesting, suppress bool) bool {
	priors, err := g.Store.Existing(ctx, path, category)
	if err != nil {
		logger.Errorf("can't look up existing artifacts for %s: %v", path, err)
		return interesting
	}
	if len(priors) == 0 {
		return interesting
	}
	if suppress {
		logger.Debugf("%s already has %d %s artifact(s); suppressed", path, len(priors), category)
		return false
	}
	if interesting {
		logger.Warnf("%s already has %d %s artifact(s); inserting a duplicate", path, len(priors), category)
	}
	return interesting
}
