package nodes

import (
	"fmt"
	"strings"

	"github.com/adityasoni99/code-iq/internal/domain"
	"github.com/adityasoni99/code-iq/internal/tokens"
)

// fileContext formats the file list for a prompt, one indexed block per
// file, and returns the "idx # path" listing alongside. When counter and
// budget are set, files that would push the context past the token budget
// are elided (the listing still names them so indices stay stable).
func fileContext(files []domain.SourceFile, counter tokens.Counter, budget int) (context string, listing string) {
	var ctxBuf, listBuf strings.Builder
	used := 0
	for i, f := range files {
		fmt.Fprintf(&listBuf, "- %d # %s\n", i, f.Path)

		entry := fmt.Sprintf("--- File Index %d: %s ---\n%s\n\n", i, f.Path, f.Content)
		if counter != nil && budget > 0 {
			cost := counter.Count(entry)
			if used+cost > budget {
				fmt.Fprintf(&ctxBuf, "--- File Index %d: %s ---\n(content omitted to fit context budget)\n\n", i, f.Path)
				continue
			}
			used += cost
		}
		ctxBuf.WriteString(entry)
	}
	return ctxBuf.String(), strings.TrimRight(listBuf.String(), "\n")
}

// contentForIndices maps "idx # path" keys to file content for the given
// indices. Out-of-range indices are skipped.
func contentForIndices(files []domain.SourceFile, indices []int) map[string]string {
	out := make(map[string]string, len(indices))
	for _, i := range indices {
		if i >= 0 && i < len(files) {
			out[fmt.Sprintf("%d # %s", i, files[i].Path)] = files[i].Content
		}
	}
	return out
}

// safeFileName lowercases name and replaces every non-alphanumeric rune
// with an underscore, matching the generated chapter file names.
func safeFileName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}
	return strings.ToLower(b.String())
}

// chapterFileName is "NN_safe_name.md" with a 1-based, zero-padded
// chapter number.
func chapterFileName(num int, name string) string {
	return fmt.Sprintf("%02d_%s.md", num, safeFileName(name))
}
