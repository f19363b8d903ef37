package git

import (
	"context"

	"github.com/dshills/apkedit/internal/service"
	"github.com/dshills/apkedit/internal/tool"
)

// Search implements service.Search with git grep.
type Search struct {
	git *tool.Git
}

// NewSearch creates a searcher running git.
func NewSearch(git *tool.Git) *Search {
	return &Search{git: git}
}

// Search returns the lines of tracked files under root containing query as
// a fixed string. Paths are relative to root.
func (s *Search) Search(ctx context.Context, root, query string) ([]service.Match, error) {
	if query == "" {
		return nil, nil
	}
	res := s.git.Run(ctx, root, nil,
		"grep", "-n", "-I", "--no-color", "--full-name", "-F", "-e", query)

	// git grep exits 1 when nothing matched.
	if res.Status == tool.StatusFailed && res.ExitCode == 1 && res.Output == "" {
		return nil, nil
	}
	if err := res.Err(); err != nil {
		return nil, err
	}
	return ParseGrep(res.Output), nil
}
