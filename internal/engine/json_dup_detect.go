package engine

import (
	"errors"
	"io"

	"github.com/reoring/jsonbind/stream"
)

// DetectDuplicateKeys drains src and reports duplicated object keys. The
// MaxDepth and MaxBytes of limits end the scan with one more issue.
// maxIssues < 0 means unlimited; 0 disables collection; > 0 caps the result and
// appends a "truncated" issue once the cap is reached.
func DetectDuplicateKeys(src stream.TokenSource, limits EnforceOptions, maxIssues int) ([]SimpleIssue, error) {
	var issues []SimpleIssue
	capped := false
	sink := func(si SimpleIssue) {
		if maxIssues == 0 || capped {
			return
		}
		issues = append(issues, si)
		if maxIssues > 0 && len(issues) >= maxIssues {
			issues = append(issues, SimpleIssue{Code: "truncated", Path: "/", Message: "max issues reached"})
			capped = true
		}
	}
	enforced := WrapWithEnforcement(src, EnforceOptions{OnDuplicate: DupWarn, MaxDepth: limits.MaxDepth, MaxBytes: limits.MaxBytes, IssueSink: sink})
	for {
		_, err := enforced.NextToken()
		if errors.Is(err, io.EOF) {
			return issues, nil
		}
		if err != nil {
			var ie IssueError
			if errors.As(err, &ie) {
				return issues, nil
			}
			return issues, err
		}
	}
}
