package presenter

import (
	"io"

	"github.com/bytedance/sonic"
)

// JSONWriter emits the report as indented JSON.
type JSONWriter struct {
	output io.Writer
}

func NewJSONWriter(output io.Writer) *JSONWriter {
	return &JSONWriter{output: output}
}

func (w *JSONWriter) Write(r Report) (int, error) {
	data, err := sonic.ConfigStd.MarshalIndent(r, "", "  ")
	if err != nil {
		return 0, err
	}
	return w.output.Write(append(data, '\n'))
}
