package data

import (
	"github.com/sirupsen/logrus"
)

// Stores groups the data stores of a node. They share one UsedSpace.
type Stores struct {
	Used      *UsedSpace
	Chunks    *ChunkStore
	Registers *RegisterStore
	Maps      *MapStore
	Sequences *SequenceStore
}

// NewStores opens every store under root.
func NewStores(root string, maxCapacity uint64, threshold float64, logger *logrus.Entry) (*Stores, error) {
	used := NewUsedSpace(maxCapacity, threshold)

	chunks, err := NewChunkStore(root, used, logger)
	if err != nil {
		return nil, err
	}
	registers, err := NewRegisterStore(root, used, logger)
	if err != nil {
		return nil, err
	}
	maps, err := NewMapStore(root, used, logger)
	if err != nil {
		return nil, err
	}
	sequences, err := NewSequenceStore(root, used, logger)
	if err != nil {
		return nil, err
	}

	return &Stores{
		Used:      used,
		Chunks:    chunks,
		Registers: registers,
		Maps:      maps,
		Sequences: sequences,
	}, nil
}
