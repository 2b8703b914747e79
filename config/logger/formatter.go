// Package logger implements a custom logger that prefixes log messages with the dataset name.
package logger

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// DatasetFormatter is a logrus formatter that adds the 'dataset' field to a log
// prefix for nicer formatted text output.
type DatasetFormatter struct {
	Parent logrus.Formatter
}

// Format implements logrus.Formatter
func (f *DatasetFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	ds, exists := entry.Data["dataset"]
	if exists {
		ns := ds.(string)
		entry.Message = fmt.Sprintf("[%-12s] %s", ns, entry.Message)
	}
	return f.Parent.Format(entry)
}
