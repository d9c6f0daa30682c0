package processor

import (
	"fmt"

	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/chartkit/chartkit/pkg/engine"
	"github.com/chartkit/chartkit/pkg/template"
)

// ParseDocument parses one YAML chart document. Both the data and chart
// blocks are required; other top-level keys are ignored.
func ParseDocument(src []byte, file string) (*Document, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, documentError(file, "invalid YAML syntax", err)
	}
	if len(root.Content) == 0 {
		return nil, documentError(file, "document is empty", nil)
	}
	top := root.Content[0]
	if top.Kind != yaml.MappingNode {
		return nil, documentError(file, "document must be a mapping with data and chart blocks", nil)
	}

	doc := &Document{File: file}
	var seenData, seenChart bool
	for i := 0; i+1 < len(top.Content); i += 2 {
		key, val := top.Content[i].Value, top.Content[i+1]
		switch key {
		case "data":
			seenData = true
			if err := val.Decode(&doc.Data); err != nil {
				return nil, documentError(file, "invalid data block", err)
			}
		case "chart":
			seenChart = true
			chart, err := template.FromYAML(val)
			if err != nil {
				return nil, documentError(file, "invalid chart block", err)
			}
			doc.Chart = chart
		}
	}

	switch {
	case !seenData:
		return nil, documentError(file, "document has no data block", nil).WithPath("data")
	case !seenChart:
		return nil, documentError(file, "document has no chart block", nil).WithPath("chart")
	}
	return doc, nil
}

// LoadDocument reads and parses a document from fs.
func LoadDocument(fs afero.Fs, path string) (*Document, error) {
	src, err := afero.ReadFile(fs, path)
	if err != nil {
		return nil, documentError(path, "failed to read document", err)
	}
	return ParseDocument(src, path)
}

func documentError(file, msg string, err error) *engine.ChartError {
	if file != "" {
		msg = fmt.Sprintf("%s: %s", file, msg)
	}
	return engine.NewConfigurationError(msg, err).WithCode(engine.ErrCodeInvalidDocument)
}
