package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter renders the runs as indented JSON.
type JSONFormatter struct{}

func (f *JSONFormatter) Format(result *FixOutput) ([]byte, error) {
	if result == nil {
		return nil, fmt.Errorf("json formatter: result is required")
	}
	return json.MarshalIndent(result, "", "  ")
}
