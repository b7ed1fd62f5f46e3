package audit

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"

	"github.com/smartplant/plantcare/internal/model/messages"
)

// Header names the columns written by CSV, in Row order.
var Header = []string{
	"timestamp", "temperature", "humidity", "light", "soil", "image",
	"disease", "confidence", "actions", "plant", "prompt", "response",
}

// CSV appends one row per record to a local file, writing the header when the file is new.
type CSV struct {
	mu   sync.Mutex
	path string
}

var _ Sink = (*CSV)(nil)

func NewCSV(path string) *CSV {
	return &CSV{path: path}
}

func (c *CSV) Append(ctx context.Context, rec messages.CycleRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	f, err := os.OpenFile(c.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return err
	}

	w := csv.NewWriter(f)
	if fi.Size() == 0 {
		if err := w.Write(Header); err != nil {
			return err
		}
	}
	row := rec.Row()
	cols := make([]string, len(row))
	for i, v := range row {
		cols[i] = fmt.Sprint(v)
	}
	if err := w.Write(cols); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}
