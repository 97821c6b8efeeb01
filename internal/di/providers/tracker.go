package providers

import (
	"github.com/samber/do/v2"

	"github.com/pagetrail/pagetrail/internal/config"
	"github.com/pagetrail/pagetrail/internal/tracker"
)

// ProvideTracker provides the GitHub Issues client for GITHUB_REPOSITORY.
// Without a token the client can read public issues but refuses writes.
func ProvideTracker(i do.Injector) (*tracker.Client, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*LoggerHandle](i)

	var owner, repo string
	if cfg.GitHub.Repository != "" {
		var err error
		if owner, repo, err = cfg.GitHub.OwnerRepo(); err != nil {
			return nil, err
		}
	}

	client := tracker.New(tracker.Options{
		BaseURL: cfg.GitHub.APIURL,
		Token:   cfg.GitHub.Token,
		Owner:   owner,
		Repo:    repo,
		Timeout: cfg.GitHub.Timeout,
	}, log.Logger.Logger)

	log.Debug("tracker client initialized", "repository", cfg.GitHub.Repository, "writable", client.Writable())
	return client, nil
}
