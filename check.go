package jsonbind

import (
	"io"

	"github.com/reoring/jsonbind/internal/engine"
)

// Issue is a finding about the input that does not stop a scan.
type Issue struct {
	Code    string
	Path    string
	Message string
}

// DetectDuplicateKeys scans one JSON document without binding it and reports
// duplicated object keys and, when MaxDepth or MaxBytes is set, excessive
// nesting or size.
// maxIssues < 0 means unlimited; a positive cap ends the list with a
// "truncated" issue.
func (e *Engine) DetectDuplicateKeys(in io.Reader, maxIssues int) ([]Issue, error) {
	found, err := engine.DetectDuplicateKeys(e.driver.NewTokenSource(in), engine.EnforceOptions{MaxDepth: e.cfg.MaxDepth, MaxBytes: e.cfg.MaxBytes}, maxIssues)
	issues := make([]Issue, 0, len(found))
	for _, si := range found {
		issues = append(issues, Issue{Code: si.Code, Path: si.Path, Message: si.Message})
	}
	if err != nil {
		return issues, wrapReadError(err, "")
	}
	return issues, nil
}
