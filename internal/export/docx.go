package export

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// ConvertDOCX converts HTML to DOCX using pandoc. Each <section> of the
// input becomes its own heading and paragraphs in the output.
func (ChromePandoc) ConvertDOCX(ctx context.Context, html string) ([]byte, error) {
	if _, err := exec.LookPath("pandoc"); err != nil {
		return nil, fmt.Errorf("%w: pandoc not installed", ErrDOCXDependencyMissing)
	}

	cmd := exec.CommandContext(ctx, "pandoc",
		"-f", "html",
		"-t", "docx",
		"--standalone",
		"-o", "-", // Output to stdout
	)
	cmd.Stdin = strings.NewReader(html)

	output, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("pandoc failed: %s", string(exitErr.Stderr))
		}
		return nil, fmt.Errorf("pandoc execution failed: %w", err)
	}
	return output, nil
}
