// Copyright 2023 TabletDB Project Authors. Licensed under Apache-2.0.

package id

import (
	"context"
	"strconv"

	"github.com/TabletDB/tabletmeta/pkg/coderr"
	"github.com/TabletDB/tabletmeta/server/storage"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const initialIndexValue uint64 = 1

// Index is a durable decimal counter mirrored to the coordination store so
// that it survives leader transitions. The in-memory discipline (who caches
// the value, when the durable copy is advanced) belongs to the caller.
type Index struct {
	logger  *zap.Logger
	storage storage.Storage
	key     string
}

func NewIndex(logger *zap.Logger, s storage.Storage, key string) *Index {
	return &Index{
		logger:  logger,
		storage: s,
		key:     key,
	}
}

// LoadOrInit reads the durable index, creating it with the initial value on
// first boot.
func (i *Index) LoadOrInit(ctx context.Context) (uint64, error) {
	val, err := i.storage.GetValue(ctx, i.key)
	if coderr.Is(err, coderr.NotFound) {
		if err := i.storage.Create(ctx, i.key, encodeIndex(initialIndexValue)); err != nil {
			return 0, errors.WithMessagef(err, "init index, key:%s", i.key)
		}
		i.logger.Info("index initialized", zap.String("key", i.key), zap.Uint64("value", initialIndexValue))
		return initialIndexValue, nil
	}
	if err != nil {
		return 0, errors.WithMessagef(err, "load index, key:%s", i.key)
	}

	decoded, err := decodeIndex(val)
	if err != nil {
		return 0, err
	}
	i.logger.Info("index recovered", zap.String("key", i.key), zap.Uint64("value", decoded))
	return decoded, nil
}

// Load reads the current durable value.
func (i *Index) Load(ctx context.Context) (uint64, error) {
	val, err := i.storage.GetValue(ctx, i.key)
	if err != nil {
		return 0, errors.WithMessagef(err, "load index, key:%s", i.key)
	}
	return decodeIndex(val)
}

// Store overwrites the durable value. The node must already exist.
func (i *Index) Store(ctx context.Context, value uint64) error {
	if err := i.storage.SetValue(ctx, i.key, encodeIndex(value)); err != nil {
		return errors.WithMessagef(err, "store index, key:%s, value:%d", i.key, value)
	}
	return nil
}

func encodeIndex(value uint64) string {
	return strconv.FormatUint(value, 10)
}

func decodeIndex(value string) (uint64, error) {
	decoded, err := strconv.ParseUint(value, 10, 64)
	if err != nil {
		return 0, ErrDecodeIndex.WithCausef("raw value:%s", value)
	}
	return decoded, nil
}
