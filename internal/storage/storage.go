package storage

import (
	"github.com/ethereum/go-ethereum/common"

	"sslScope/internal/model"
)

// Storage defines a sink for density chart entries.
type Storage interface {
	PutChartEntries(pool common.Address, entries []model.ChartEntry) error
}
