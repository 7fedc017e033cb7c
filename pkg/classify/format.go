// pkg/classify/format.go
package classify

import (
	"fmt"
	"strings"

	"github.com/kpolley/PIIDetective/pkg/platform"
)

// FormatTable renders a table descriptor as the schema document sent to the
// model. The rendering is deterministic: the same descriptor always produces
// the same document.
func FormatTable(table *platform.TableDescriptor) string {
	return fmt.Sprintf("Table Name: %s\nDataset ID: %s\n\nSchema:\n%s\n",
		table.TableName,
		table.DatasetID,
		strings.Join(table.Columns, "\n"),
	)
}
