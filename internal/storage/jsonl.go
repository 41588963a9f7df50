package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"sslScope/internal/model"
)

type chartRow struct {
	Pool string `json:"pool"`
	model.ChartEntry
}

// JsonlStorage appends chart entries to a JSONL file, one entry per line.
type JsonlStorage struct {
	path string
	mu   sync.Mutex
}

func NewJsonlStorage(path string) *JsonlStorage {
	return &JsonlStorage{path: path}
}

// PutChartEntries appends the entries of one chart, tagged with the pool.
func (s *JsonlStorage) PutChartEntries(pool common.Address, entries []model.ChartEntry) error {
	if len(entries) == 0 {
		return nil
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	file, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	writer := bufio.NewWriter(file)
	enc := json.NewEncoder(writer)
	for _, entry := range entries {
		if err := enc.Encode(chartRow{Pool: pool.Hex(), ChartEntry: entry}); err != nil {
			return fmt.Errorf("write chart entry %d: %w", entry.Index, err)
		}
	}

	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}

	return nil
}
